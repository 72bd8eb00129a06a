package hue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// V1Group controls a group through the v1 REST API.
// IsOn follows the group's all_on flag.
type V1Group struct {
	bridge  *huego.Bridge
	id      int
	groupID string
	limiter *rate.Limiter
}

// NewV1Group creates a v1 group. groupID must be numeric.
func NewV1Group(address, token, groupID string, limiter *rate.Limiter) (*V1Group, error) {
	id, err := strconv.Atoi(groupID)
	if err != nil {
		return nil, fmt.Errorf("invalid v1 group id %q: %w", groupID, err)
	}

	return &V1Group{
		bridge:  huego.New(address, token),
		id:      id,
		groupID: groupID,
		limiter: limiter,
	}, nil
}

// ID returns the group id.
func (g *V1Group) ID() string {
	return g.groupID
}

// IsOn implements LightGroup.
func (g *V1Group) IsOn(ctx context.Context) (bool, error) {
	state, err := g.fetchGroupState(ctx)
	if err != nil {
		return false, &Error{Op: "is_on", Group: g.groupID, Err: err}
	}
	return state.AllOn, nil
}

// SetOn implements LightGroup.
func (g *V1Group) SetOn(ctx context.Context, on bool) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return &Error{Op: "set_on", Group: g.groupID, Err: err}
	}

	log.Debug().
		Str("group", g.groupID).
		Bool("on", on).
		Msg("Setting group power")

	if _, err := g.bridge.SetGroupStateContext(ctx, g.id, huego.State{On: on}); err != nil {
		return &Error{Op: "set_on", Group: g.groupID, Err: err}
	}
	return nil
}

// Check implements LightGroup.
func (g *V1Group) Check(ctx context.Context) error {
	if _, err := g.fetchGroupState(ctx); err != nil {
		return &Error{Op: "check", Group: g.groupID, Err: err}
	}
	return nil
}

// fetchGroupState fetches group state directly from the bridge.
func (g *V1Group) fetchGroupState(ctx context.Context) (*huego.GroupState, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	group, err := g.bridge.GetGroupContext(ctx, g.id)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}

	if group.GroupState != nil {
		return group.GroupState, nil
	}

	// Return empty state if nil
	return &huego.GroupState{}, nil
}
