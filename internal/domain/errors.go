package domain

import "errors"

var (
	// ErrInvalidRequest indicates malformed or missing callback parameters.
	ErrInvalidRequest = errors.New("auth: invalid request")
	// ErrSignatureInvalid indicates the callback HMAC did not verify.
	ErrSignatureInvalid = errors.New("auth: hmac signature invalid")
	// ErrStateNotFound indicates an unknown or already-consumed state token.
	ErrStateNotFound = errors.New("auth: state not found")
	// ErrStateExpired indicates the state token outlived its TTL.
	ErrStateExpired = errors.New("auth: state expired")
	// ErrShopMismatch indicates the callback shop differs from the one the state was issued for.
	ErrShopMismatch = errors.New("auth: state shop mismatch")
	// ErrScopeNotGranted indicates the merchant stripped required scopes during authorization.
	ErrScopeNotGranted = errors.New("auth: required scopes not granted")
	// ErrInvalidGrant indicates the authorization code was already used or has expired. Terminal.
	ErrInvalidGrant = errors.New("auth: invalid grant")
	// ErrExchangeUnavailable indicates the token endpoint could not be reached in time.
	// Transient from the platform's point of view, but the install flow must be restarted.
	ErrExchangeUnavailable = errors.New("auth: token exchange unavailable")
	// ErrExchangeFailed indicates a malformed or unexpected token endpoint response.
	ErrExchangeFailed = errors.New("auth: token exchange failed")
	// ErrInstallationNotFound indicates no stored authorization for the requested shop.
	ErrInstallationNotFound = errors.New("auth: installation not found")
	// ErrPersistence indicates the token store could not complete a durable write or read.
	ErrPersistence = errors.New("auth: persistence failure")
)
