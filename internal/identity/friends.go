package identity

import (
	"context"
	"fmt"

	"github.com/alecgard/kyosor/internal/handleset"
)

// Friend graph operations. Each loads the whole table, edits both sides of
// the pair and writes the table back once. Operations that would change
// nothing do not write.

// SendFriendRequest records a pending request from one identity to another.
// It is a no-op for self requests, unknown identities and existing friends,
// and idempotent otherwise.
func (d *Directory) SendFriendRequest(ctx context.Context, from, to string) error {
	if from == to {
		return nil
	}
	ids, err := d.load(ctx)
	if err != nil {
		return err
	}
	a, b := findByHandle(ids, from), findByHandle(ids, to)
	if a == nil || b == nil {
		return nil
	}
	if handleset.Contains(a.Friends, to) {
		return nil
	}
	if handleset.Contains(a.OutgoingRequests, to) && handleset.Contains(b.IncomingRequests, from) {
		return nil
	}

	a.OutgoingRequests = handleset.Add(a.OutgoingRequests, to)
	b.IncomingRequests = handleset.Add(b.IncomingRequests, from)
	if err := d.save(ctx, ids); err != nil {
		return fmt.Errorf("sending friend request: %w", err)
	}
	return nil
}

// AcceptFriendRequest turns a pending request from `from` into a friendship.
// It is a no-op when no such request exists.
func (d *Directory) AcceptFriendRequest(ctx context.Context, self, from string) error {
	if self == from {
		return nil
	}
	ids, err := d.load(ctx)
	if err != nil {
		return err
	}
	me, them := findByHandle(ids, self), findByHandle(ids, from)
	if me == nil || them == nil {
		return nil
	}
	if !handleset.Contains(me.IncomingRequests, from) && !handleset.Contains(them.OutgoingRequests, self) {
		return nil
	}

	link(me, them)
	if err := d.save(ctx, ids); err != nil {
		return fmt.Errorf("accepting friend request: %w", err)
	}
	return nil
}

// DeclineFriendRequest drops a pending request from `from` without creating
// a friendship.
func (d *Directory) DeclineFriendRequest(ctx context.Context, self, from string) error {
	ids, err := d.load(ctx)
	if err != nil {
		return err
	}
	me, them := findByHandle(ids, self), findByHandle(ids, from)
	if me == nil || them == nil {
		return nil
	}
	if !handleset.Contains(me.IncomingRequests, from) && !handleset.Contains(them.OutgoingRequests, self) {
		return nil
	}

	me.IncomingRequests = handleset.Remove(me.IncomingRequests, from)
	them.OutgoingRequests = handleset.Remove(them.OutgoingRequests, self)
	if err := d.save(ctx, ids); err != nil {
		return fmt.Errorf("declining friend request: %w", err)
	}
	return nil
}

// AddFriend links two identities directly, clearing any pending requests
// between them in either direction.
func (d *Directory) AddFriend(ctx context.Context, a, b string) error {
	if a == b {
		return nil
	}
	ids, err := d.load(ctx)
	if err != nil {
		return err
	}
	x, y := findByHandle(ids, a), findByHandle(ids, b)
	if x == nil || y == nil {
		return nil
	}
	if handleset.Contains(x.Friends, b) && handleset.Contains(y.Friends, a) {
		return nil
	}

	link(x, y)
	if err := d.save(ctx, ids); err != nil {
		return fmt.Errorf("adding friend: %w", err)
	}
	return nil
}

// RemoveFriend deletes the friendship between a and b on both sides.
func (d *Directory) RemoveFriend(ctx context.Context, a, b string) error {
	if a == b {
		return nil
	}
	ids, err := d.load(ctx)
	if err != nil {
		return err
	}
	x, y := findByHandle(ids, a), findByHandle(ids, b)
	if x == nil || y == nil {
		return nil
	}
	if !handleset.Contains(x.Friends, b) && !handleset.Contains(y.Friends, a) {
		return nil
	}

	x.Friends = handleset.Remove(x.Friends, b)
	y.Friends = handleset.Remove(y.Friends, a)
	if err := d.save(ctx, ids); err != nil {
		return fmt.Errorf("removing friend: %w", err)
	}
	return nil
}

// Friends returns the identities linked to handle. Dangling references are
// skipped.
func (d *Directory) Friends(ctx context.Context, handle string) ([]*Identity, error) {
	return d.resolve(ctx, handle, func(id *Identity) []string { return id.Friends })
}

// IncomingRequests returns the identities with a pending request to handle.
func (d *Directory) IncomingRequests(ctx context.Context, handle string) ([]*Identity, error) {
	return d.resolve(ctx, handle, func(id *Identity) []string { return id.IncomingRequests })
}

// OutgoingRequests returns the identities handle has a pending request to.
func (d *Directory) OutgoingRequests(ctx context.Context, handle string) ([]*Identity, error) {
	return d.resolve(ctx, handle, func(id *Identity) []string { return id.OutgoingRequests })
}

func (d *Directory) resolve(ctx context.Context, handle string, pick func(*Identity) []string) ([]*Identity, error) {
	ids, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	me := findByHandle(ids, handle)
	if me == nil {
		return nil, ErrNotFound
	}
	out := []*Identity{}
	for _, h := range pick(me) {
		if id := findByHandle(ids, h); id != nil {
			out = append(out, id)
		}
	}
	return out, nil
}

// link makes x and y friends and clears every pending request between them,
// keeping requests and friendships mutually exclusive.
func link(x, y *Identity) {
	x.IncomingRequests = handleset.Remove(x.IncomingRequests, y.Handle)
	x.OutgoingRequests = handleset.Remove(x.OutgoingRequests, y.Handle)
	y.IncomingRequests = handleset.Remove(y.IncomingRequests, x.Handle)
	y.OutgoingRequests = handleset.Remove(y.OutgoingRequests, x.Handle)
	x.Friends = handleset.Add(x.Friends, y.Handle)
	y.Friends = handleset.Add(y.Friends, x.Handle)
}
