// Package trust maintains the set of capsules whose runs skip interactive
// authorization, together with the authorization policy generated from it.
package trust

import (
	"errors"
	"os"
	"slices"

	"github.com/bluecap/bluecap/libcapsule"
	"github.com/bluecap/bluecap/libcapsule/store"
)

// Record is the on-disk trust record.
type Record struct {
	Trusted []string `json:"trusted"`
}

// Syncer owns the trust record and the policy generated from it. The two
// are only ever written together, the policy always rendered from scratch
// out of the record being written.
type Syncer struct {
	TrustFile  string
	PolicyFile string
	// Policy is everything the policy needs besides the trusted names.
	Policy PolicyInput
}

// Load reads the trust record. A missing record is an empty trust set.
func (s *Syncer) Load() (*Record, error) {
	r, err := store.Read[Record](s.TrustFile)
	if errors.Is(err, store.ErrNotFound) {
		return &Record{Trusted: []string{}}, nil
	}
	return r, err
}

// IsTrusted reports whether name is in the trust set.
func (s *Syncer) IsTrusted(name string) (bool, error) {
	r, err := s.Load()
	if err != nil {
		return false, err
	}
	return slices.Contains(r.Trusted, name), nil
}

// SetTrust adds name to the trust set, or removes it when trusted is false,
// and regenerates the policy.
func (s *Syncer) SetTrust(name string, trusted bool) error {
	if err := libcapsule.ValidateName(name); err != nil {
		return err
	}
	r, err := s.Load()
	if err != nil {
		return err
	}
	r.Trusted = store.MergeSet(r.Trusted, []string{name}, !trusted)
	return s.write(r)
}

// Sync regenerates the policy from the current trust record.
func (s *Syncer) Sync() error {
	r, err := s.Load()
	if err != nil {
		return err
	}
	return s.write(r)
}

func (s *Syncer) write(r *Record) error {
	in := s.Policy
	in.Trusted = r.Trusted
	// Render first: an invalid name must stop both writes.
	policy, err := GeneratePolicy(in)
	if err != nil {
		return err
	}
	if err := store.WriteJSON(s.TrustFile, r, 0o644); err != nil {
		return err
	}
	return store.WriteAtomic(s.PolicyFile, policy, 0o644)
}

// InSync reports whether the installed policy grants exactly the trust set
// in the record.
func (s *Syncer) InSync() (bool, error) {
	r, err := s.Load()
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(s.PolicyFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return len(r.Trusted) == 0, nil
		}
		return false, err
	}
	lookup, err := TrustedFromPolicy(data)
	if err != nil {
		return false, err
	}
	if len(lookup) != len(r.Trusted) {
		return false, nil
	}
	for _, name := range r.Trusted {
		if !lookup[name] {
			return false, nil
		}
	}
	return true, nil
}
