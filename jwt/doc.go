// Package jwt issues and verifies the HS256 access and refresh tokens. Each
// token kind is handled by its own [Manager] with its own secret, so a token of
// one kind never verifies as the other.
package jwt
