package identity

import "context"

// Authenticator defines the interface for credential-based sign-in.
// This abstraction allows swapping between different auth methods without
// changing the RPC layer.
type Authenticator interface {
	// Register creates a credential for email and returns the new user's profile.
	Register(ctx context.Context, email, displayName, credential string) (Profile, error)

	// Authenticate verifies the credential and returns the user's profile.
	Authenticate(ctx context.Context, email, credential string) (Profile, error)

	// ValidateCredential checks if the credential meets the implementation's requirements.
	ValidateCredential(credential string) error
}
