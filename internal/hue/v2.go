package hue

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openhue/openhue-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// V2Group controls a grouped_light resource through the CLIP v2 API.
// The bridge aggregates grouped_light power as "any light on", so IsOn
// reads the member lights individually.
type V2Group struct {
	client  *openhue.ClientWithResponses
	groupID string
	limiter *rate.Limiter
}

// NewV2Group creates a v2 group. baseURL is the bridge root, e.g. https://10.0.0.2.
func NewV2Group(baseURL, token, groupID string, httpClient *http.Client, limiter *rate.Limiter) (*V2Group, error) {
	client, err := openhue.NewClientWithResponses(
		baseURL,
		openhue.WithHTTPClient(httpClient),
		openhue.WithRequestEditorFn(func(ctx context.Context, req *http.Request) error {
			req.Header.Set("hue-application-key", token)
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Hue v2 client for %s: %w", baseURL, err)
	}

	return &V2Group{
		client:  client,
		groupID: groupID,
		limiter: limiter,
	}, nil
}

// ID returns the grouped_light id.
func (g *V2Group) ID() string {
	return g.groupID
}

// IsOn implements LightGroup. It is true only when every light of the
// room or zone owning the grouped_light is on.
func (g *V2Group) IsOn(ctx context.Context) (bool, error) {
	on, err := g.allOn(ctx)
	if err != nil {
		return false, &Error{Op: "is_on", Group: g.groupID, Err: err}
	}
	return on, nil
}

// SetOn implements LightGroup.
func (g *V2Group) SetOn(ctx context.Context, on bool) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return &Error{Op: "set_on", Group: g.groupID, Err: err}
	}

	log.Debug().
		Str("group", g.groupID).
		Bool("on", on).
		Msg("Setting grouped light power")

	body := openhue.UpdateGroupedLightJSONRequestBody{
		On: &openhue.On{On: &on},
	}
	resp, err := g.client.UpdateGroupedLightWithResponse(ctx, g.groupID, body)
	if err != nil {
		return &Error{Op: "set_on", Group: g.groupID, Err: err}
	}
	if resp.HTTPResponse != nil && resp.HTTPResponse.StatusCode != http.StatusOK {
		return &Error{Op: "set_on", Group: g.groupID, Err: httpStatusError(resp.HTTPResponse)}
	}
	return nil
}

// Check implements LightGroup.
func (g *V2Group) Check(ctx context.Context) error {
	if _, err := g.fetchGroup(ctx); err != nil {
		return &Error{Op: "check", Group: g.groupID, Err: err}
	}
	return nil
}

func (g *V2Group) allOn(ctx context.Context) (bool, error) {
	group, err := g.fetchGroup(ctx)
	if err != nil {
		return false, err
	}
	// The aggregate is "any on": off means no light is on
	if group.On == nil || group.On.On == nil || !*group.On.On {
		return false, nil
	}
	if group.Owner == nil || group.Owner.Rid == nil || group.Owner.Rtype == nil {
		return false, fmt.Errorf("grouped_light %s has no owner", g.groupID)
	}

	members, err := g.fetchMembers(ctx, *group.Owner)
	if err != nil {
		return false, err
	}

	lights, err := g.fetchLights(ctx)
	if err != nil {
		return false, err
	}

	matched := 0
	for _, l := range lights {
		if !members.contains(l) {
			continue
		}
		matched++
		if l.On == nil || l.On.On == nil || !*l.On.On {
			return false, nil
		}
	}
	return matched > 0, nil
}

// memberSet holds the children of a room or zone. Rooms list devices,
// zones list lights.
type memberSet struct {
	all     bool
	lights  map[string]bool
	devices map[string]bool
}

func (m memberSet) contains(l openhue.LightGet) bool {
	if m.all {
		return true
	}
	if l.Id != nil && m.lights[*l.Id] {
		return true
	}
	return l.Owner != nil && l.Owner.Rid != nil && m.devices[*l.Owner.Rid]
}

func (g *V2Group) fetchMembers(ctx context.Context, owner openhue.ResourceIdentifier) (memberSet, error) {
	var children *[]openhue.ResourceIdentifier

	switch *owner.Rtype {
	case openhue.ResourceIdentifierRtypeBridgeHome:
		return memberSet{all: true}, nil
	case openhue.ResourceIdentifierRtypeRoom:
		if err := g.limiter.Wait(ctx); err != nil {
			return memberSet{}, err
		}
		resp, err := g.client.GetRoomWithResponse(ctx, *owner.Rid)
		if err != nil {
			return memberSet{}, err
		}
		if resp.JSON200 == nil || resp.JSON200.Data == nil || len(*resp.JSON200.Data) == 0 {
			return memberSet{}, fmt.Errorf("room %s: %w", *owner.Rid, httpStatusError(resp.HTTPResponse))
		}
		children = (*resp.JSON200.Data)[0].Children
	case openhue.ResourceIdentifierRtypeZone:
		if err := g.limiter.Wait(ctx); err != nil {
			return memberSet{}, err
		}
		resp, err := g.client.GetZoneWithResponse(ctx, *owner.Rid)
		if err != nil {
			return memberSet{}, err
		}
		if resp.JSON200 == nil || resp.JSON200.Data == nil || len(*resp.JSON200.Data) == 0 {
			return memberSet{}, fmt.Errorf("zone %s: %w", *owner.Rid, httpStatusError(resp.HTTPResponse))
		}
		children = (*resp.JSON200.Data)[0].Children
	default:
		return memberSet{}, fmt.Errorf("unsupported grouped_light owner type %q", *owner.Rtype)
	}

	m := memberSet{lights: map[string]bool{}, devices: map[string]bool{}}
	if children == nil {
		return m, nil
	}
	for _, c := range *children {
		if c.Rid == nil || c.Rtype == nil {
			continue
		}
		switch *c.Rtype {
		case openhue.ResourceIdentifierRtypeLight:
			m.lights[*c.Rid] = true
		case openhue.ResourceIdentifierRtypeDevice:
			m.devices[*c.Rid] = true
		}
	}
	return m, nil
}

func (g *V2Group) fetchLights(ctx context.Context) ([]openhue.LightGet, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := g.client.GetLightsWithResponse(ctx)
	if err != nil {
		return nil, err
	}
	if resp.JSON200 == nil || resp.JSON200.Data == nil {
		return nil, fmt.Errorf("lights: %w", httpStatusError(resp.HTTPResponse))
	}
	return *resp.JSON200.Data, nil
}

func (g *V2Group) fetchGroup(ctx context.Context) (openhue.GroupedLightGet, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return openhue.GroupedLightGet{}, err
	}

	resp, err := g.client.GetGroupedLightWithResponse(ctx, g.groupID)
	if err != nil {
		return openhue.GroupedLightGet{}, err
	}
	if resp.HTTPResponse != nil && resp.HTTPResponse.StatusCode == http.StatusNotFound {
		return openhue.GroupedLightGet{}, ErrGroupNotFound
	}
	if resp.JSON200 == nil {
		return openhue.GroupedLightGet{}, httpStatusError(resp.HTTPResponse)
	}
	if resp.JSON200.Data == nil || len(*resp.JSON200.Data) == 0 {
		return openhue.GroupedLightGet{}, ErrGroupNotFound
	}
	return (*resp.JSON200.Data)[0], nil
}

func httpStatusError(resp *http.Response) error {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	return fmt.Errorf("bridge returned HTTP %d", status)
}
