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

package acs

import "errors"

var (
	// ErrQueueClosed is returned when a transfer is enqueued against an
	// entry that has been removed from the registry.
	ErrQueueClosed = errors.New("transfer queue closed")

	// ErrAuth marks authentication failures, inbound and outbound.
	ErrAuth = errors.New("authentication failed")

	// ErrProtocol marks malformed or out-of-order CWMP traffic.
	ErrProtocol = errors.New("protocol error")

	// ErrConfig marks an unusable persistence record on restore.
	ErrConfig = errors.New("invalid acs config")
)
