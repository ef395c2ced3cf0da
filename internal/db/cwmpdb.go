// Copyright 2024 The acsrs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jarlah/acsrs/pkg/cwmp"
)

const dbName = "acsrs"

// CwmpDb is the inventory handle. It implements acs.Inventory.
type CwmpDb struct {
	client  *mongo.Client
	devices *mongo.Collection
	params  *mongo.Collection
}

// CwmpDevice is the persisted device record, keyed by serial number.
type CwmpDevice struct {
	ID                   string    `bson:"_id"`
	Manufacturer         string    `bson:"manufacturer"`
	OUI                  string    `bson:"oui"`
	ProductClass         string    `bson:"product_class"`
	SerialNumber         string    `bson:"serial_number"`
	ConnectionRequestURL string    `bson:"connection_request_url"`
	LastInform           time.Time `bson:"last_inform"`
	LastEvents           []string  `bson:"last_events"`
	UpdatedAt            time.Time `bson:"updated_at"`
}

// CwmpParameter is one data-model parameter value observed on a device.
type CwmpParameter struct {
	DeviceID   string    `bson:"device_id"`
	Path       string    `bson:"path"`
	Value      string    `bson:"value"`
	Type       string    `bson:"type"`
	LastUpdate time.Time `bson:"last_update"`
}

// NewCwmpDb wraps a connected client.
func NewCwmpDb(client *mongo.Client) *CwmpDb {
	return &CwmpDb{
		client:  client,
		devices: client.Database(dbName).Collection("devices"),
		params:  client.Database(dbName).Collection("parameters"),
	}
}

// RecordInform upserts the device record and the parameters the Inform
// carried.
func (d *CwmpDb) RecordInform(ctx context.Context, dev cwmp.DeviceId, connreqURL string, events []string, params []cwmp.ParameterValueStruct) error {
	now := time.Now()
	record := CwmpDevice{
		ID:                   dev.SerialNumber,
		Manufacturer:         dev.Manufacturer,
		OUI:                  dev.OUI,
		ProductClass:         dev.ProductClass,
		SerialNumber:         dev.SerialNumber,
		ConnectionRequestURL: connreqURL,
		LastInform:           now,
		LastEvents:           events,
		UpdatedAt:            now,
	}

	filter := bson.M{"_id": dev.SerialNumber}
	update := bson.M{"$set": record}
	opts := options.Update().SetUpsert(true)
	if _, err := d.devices.UpdateOne(ctx, filter, update, opts); err != nil {
		return err
	}
	return d.RecordParams(ctx, dev.SerialNumber, params)
}

// RecordParams upserts observed parameter values for a device.
func (d *CwmpDb) RecordParams(ctx context.Context, serial string, params []cwmp.ParameterValueStruct) error {
	now := time.Now()
	opts := options.Update().SetUpsert(true)
	for _, p := range params {
		record := CwmpParameter{
			DeviceID:   serial,
			Path:       p.Name,
			Value:      p.Value.Value,
			Type:       p.Value.Type,
			LastUpdate: now,
		}
		filter := bson.M{"device_id": serial, "path": p.Name}
		if _, err := d.params.UpdateOne(ctx, filter, bson.M{"$set": record}, opts); err != nil {
			return err
		}
	}
	return nil
}

// GetDevice reads one device record.
func (d *CwmpDb) GetDevice(ctx context.Context, serial string) (*CwmpDevice, error) {
	var device CwmpDevice
	if err := d.devices.FindOne(ctx, bson.M{"_id": serial}).Decode(&device); err != nil {
		return nil, err
	}
	return &device, nil
}

// GetParams reads all recorded parameters of a device.
func (d *CwmpDb) GetParams(ctx context.Context, serial string) ([]CwmpParameter, error) {
	cursor, err := d.params.Find(ctx, bson.M{"device_id": serial})
	if err != nil {
		return nil, err
	}
	var out []CwmpParameter
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Close disconnects from the server.
func (d *CwmpDb) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}
