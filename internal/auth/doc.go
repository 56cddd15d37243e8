// Package auth provides authentication and authorisation for fluidcore.
//
// It implements a 3-tier role model (viewer → operator → admin) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - Short-lived JWT access tokens, validated by signature only
//   - Static role-permission mapping (compile-time, no database lookup)
//
// Authorisation is coarse-grained on purpose: a forged or over-privileged
// token would let a caller drive a physical liquid handler, so execute
// permissions are granted only to operator and admin accounts.
package auth
