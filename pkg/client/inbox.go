/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package client

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// InboxPrefix starts every reply topic created by NewInbox.
const InboxPrefix = "INBOX"

// NewInbox returns a fresh reply topic of the form
// INBOX.<counter in base 36>.<random hex>. Inboxes from one connection
// never repeat; the random part keeps connections apart.
func (c *Connection) NewInbox() string {
	seq := c.inboxSeq.Add(1)
	id := uuid.New()
	return InboxPrefix + "." + strconv.FormatUint(seq, 36) + "." + strings.ReplaceAll(id.String(), "-", "")
}
