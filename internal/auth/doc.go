// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

// Package auth provides account registration and credential login.
//
// # Domain Types
//
// Users should be created with NewUser, which validates the username and
// email and requires an already hashed password. Repository implementations
// receive pre-validated users.
//
// # Services
//
// Service coordinates the account lifecycle:
//   - Register - validate, hash and store a new user
//   - Login - verify credentials by username or email and start a session
//   - Logout, IsAuthenticated, CurrentUser, HasPermission - session checks
//
// Failures are classified by Kind. PublicMessage returns the text that may be
// shown to a client; storage causes are only ever logged.
package auth
