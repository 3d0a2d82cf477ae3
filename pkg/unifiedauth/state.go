package unifiedauth

import (
	"github.com/conduit-ucpi/webapp-sub000/pkg/auth"
	"github.com/conduit-ucpi/webapp-sub000/pkg/session"
	"github.com/conduit-ucpi/webapp-sub000/pkg/wallet"
)

// Status is the provider's lifecycle state.
type Status string

const (
	StatusUninitialized    Status = "uninitialized"
	StatusInitializing     Status = "initializing"
	StatusReady            Status = "ready"
	StatusConnecting       Status = "connecting"
	StatusConnected        Status = "connected"
	StatusReauthenticating Status = "reauthenticating"
	StatusError            Status = "error"
)

// AuthUser is replaced wholesale, never mutated, once published in a state.
type AuthUser struct {
	UserID          string      `json:"userId,omitempty"`
	WalletAddress   string      `json:"walletAddress"`
	Email           string      `json:"email,omitempty"`
	UserType        string      `json:"userType,omitempty"`
	Username        string      `json:"username,omitempty"`
	DisplayName     string      `json:"displayName,omitempty"`
	ProfileImageURL string      `json:"profileImageUrl,omitempty"`
	AuthProvider    wallet.Kind `json:"authProvider"`
}

// AuthState is a snapshot of the provider. IsConnected implies User != nil;
// a Token may outlive the connection that produced it.
type AuthState struct {
	Status        Status    `json:"status"`
	User          *AuthUser `json:"user,omitempty"`
	Token         string    `json:"-"`
	IsConnected   bool      `json:"isConnected"`
	IsLoading     bool      `json:"isLoading"`
	IsInitialized bool      `json:"isInitialized"`
	Error         string    `json:"error,omitempty"`
	ProviderName  string    `json:"providerName,omitempty"`
}

func initialState() AuthState {
	return AuthState{Status: StatusUninitialized}
}

func readyState() AuthState {
	return AuthState{Status: StatusReady, IsInitialized: true}
}

// newUser builds the user for address, folding in the backend identity when
// it belongs to the same wallet.
func newUser(address string, kind wallet.Kind, id *session.Identity) *AuthUser {
	u := &AuthUser{WalletAddress: address, AuthProvider: kind}
	if id == nil || !auth.SameAddress(id.WalletAddress, address) {
		return u
	}
	u.UserID = id.UserID
	u.Email = id.Email
	u.UserType = id.UserType
	u.Username = id.Username
	u.DisplayName = id.DisplayName
	u.ProfileImageURL = id.ProfileImageURL
	return u
}
