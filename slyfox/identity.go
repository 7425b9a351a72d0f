package slyfox

import "log/slog"

const (
	TierMember Tier = "member"
	TierOwner  Tier = "owner"
)

// Tier is an identity's privilege level.
type Tier string

// Identity is a statically configured Discord user, with the prefix
// prepended to completion replies for that user, a human-readable
// label, and a privilege tier.
type Identity struct {
	UserID string
	Prefix string
	Label  string
	Tier   Tier
}

func (i Identity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user_id", i.UserID),
		slog.String("prefix", i.Prefix),
		slog.String("label", i.Label),
		slog.String("tier", string(i.Tier)),
	)
}

// IdentityRegistry is an immutable, ordered view of the configured
// identities. It's built once at startup and never mutated, so it
// needs no locking.
type IdentityRegistry struct {
	identities []Identity
	byID       map[string]Identity
	ownerID    string
}

// NewIdentityRegistry builds a registry from the bot config. Identity
// order follows configuration order.
func NewIdentityRegistry(config *BotConfig) *IdentityRegistry {
	r := &IdentityRegistry{
		byID:    make(map[string]Identity, len(config.Identities)),
		ownerID: config.OwnerID,
	}
	for _, ic := range config.Identities {
		tier := TierMember
		if ic.Owner || (config.OwnerID != "" && ic.UserID == config.OwnerID) {
			tier = TierOwner
		}
		identity := Identity{
			UserID: ic.UserID,
			Prefix: ic.Prefix,
			Label:  ic.Label,
			Tier:   tier,
		}
		r.identities = append(r.identities, identity)
		r.byID[ic.UserID] = identity
	}
	return r
}

// Prefix returns the configured reply prefix for the given user ID, or
// an empty string for unknown users.
func (r *IdentityRegistry) Prefix(userID string) string {
	return r.byID[userID].Prefix
}

// IsOwner reports whether the given user ID holds the owner tier.
func (r *IdentityRegistry) IsOwner(userID string) bool {
	if userID == "" {
		return false
	}
	if userID == r.ownerID {
		return true
	}
	return r.byID[userID].Tier == TierOwner
}

// All returns the configured identities in configuration order. The
// returned slice must not be modified.
func (r *IdentityRegistry) All() []Identity {
	return r.identities
}
