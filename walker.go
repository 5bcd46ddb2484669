// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package rdap

import (
	"context"
	"fmt"
	"strings"
)

// LinkTargetNone is the sentinel target disabling referral traversal.
const LinkTargetNone = "_none"

// A LinkTargetConfig bounds a referral walk: which link relations to follow,
// and how deep.
//
// The seed response sits at depth 1. Between MinDepth and MaxDepth the
// walker tolerates absence of matching links; failing to reach MinDepth is
// an error.
type LinkTargetConfig struct {
	// Link relation values to follow, matched case-insensitively. Empty, or
	// containing the "_none" sentinel, disables traversal.
	Targets []string

	// OnlyShowTarget surfaces only the deepest response reached.
	OnlyShowTarget bool

	MinDepth int
	MaxDepth int
}

// A WalkResult is one response gathered during a referral walk.
type WalkResult struct {
	// Depth of the response: the seed is 1, its referrals 2, and so on.
	Depth int

	// Object is the decoded response.
	Object RDAPObject

	// HTTP records the exchange which produced the response. Nil for the
	// seed.
	HTTP *HTTPResponse
}

// DefaultLinkTargets returns the walk configuration for a request type:
// domain lookups follow "related" links to depth 3 (covering the common
// registry -> registrar referral), everything else stays at the seed.
func DefaultLinkTargets(requestType RequestType) LinkTargetConfig {
	if requestType == DomainRequest {
		return LinkTargetConfig{
			Targets:  []string{"related"},
			MinDepth: 1,
			MaxDepth: 3,
		}
	}

	return LinkTargetConfig{MinDepth: 1, MaxDepth: 1}
}

// LinkTargetsForMode returns the walk configuration of a preconfigured mode:
// "registry", "registrar", "up", "down", "top", or "bottom".
func LinkTargetsForMode(mode string) (LinkTargetConfig, error) {
	switch mode {
	case "registry":
		return LinkTargetConfig{MinDepth: 1, MaxDepth: 1}, nil
	case "registrar":
		return LinkTargetConfig{
			Targets:        []string{"related"},
			OnlyShowTarget: true,
			MinDepth:       2,
			MaxDepth:       3,
		}, nil
	case "up":
		return LinkTargetConfig{
			Targets:        []string{"rdap-up", "rdap-active"},
			OnlyShowTarget: true,
			MinDepth:       2,
			MaxDepth:       2,
		}, nil
	case "down":
		return LinkTargetConfig{
			Targets:        []string{"rdap-down", "rdap-active"},
			OnlyShowTarget: true,
			MinDepth:       2,
			MaxDepth:       2,
		}, nil
	case "top":
		return LinkTargetConfig{
			Targets:        []string{"rdap-top", "rdap-active"},
			OnlyShowTarget: true,
			MinDepth:       2,
			MaxDepth:       2,
		}, nil
	case "bottom":
		return LinkTargetConfig{
			Targets:        []string{"rdap-bottom", "rdap-active"},
			OnlyShowTarget: true,
			MinDepth:       2,
			MaxDepth:       2,
		}, nil
	}

	return LinkTargetConfig{}, fmt.Errorf("unknown link target mode %q", mode)
}

func (cfg *LinkTargetConfig) disabled() bool {
	if len(cfg.Targets) == 0 {
		return true
	}

	for _, target := range cfg.Targets {
		if target == LinkTargetNone {
			return true
		}
	}

	return false
}

func (cfg *LinkTargetConfig) matches(rel string) bool {
	for _, target := range cfg.Targets {
		if strings.EqualFold(target, rel) {
			return true
		}
	}

	return false
}

// WalkLinkTargets expands a seed response by following its link target
// relations.
//
// Matching links are fetched against their href directly (no re-bootstrap)
// and their responses recursed into, up to cfg.MaxDepth. A depth below
// cfg.MinDepth with no matching links is reported as ErrLinkTargetNotFound;
// past MinDepth, fetch failures and missing links simply stop the walk.
//
// Results are returned shallowest first. When cfg.OnlyShowTarget is set,
// only the deepest response is returned.
func (c *Client) WalkLinkTargets(ctx context.Context, seed *Response, cfg LinkTargetConfig) ([]*WalkResult, error) {
	results := []*WalkResult{{Depth: 1, Object: seed.Object}}

	if cfg.disabled() || cfg.MaxDepth <= 1 {
		if cfg.MinDepth > 1 && !cfg.disabled() {
			return nil, ErrLinkTargetNotFound
		}

		return results, nil
	}

	depth := 1
	current := []RDAPObject{seed.Object}

	for depth < cfg.MaxDepth && len(current) > 0 {
		var next []RDAPObject

		for _, object := range current {
			for _, link := range ObjectLinks(object) {
				if link.Href == "" || !cfg.matches(link.Rel) {
					continue
				}

				c.verbose(fmt.Sprintf("walker: following %q link to %s", link.Rel, link.Href))

				hop := &Response{}
				hop, err := c.do(ctx, link.Href, hop)
				if err != nil {
					if depth+1 <= cfg.MinDepth {
						return nil, fmt.Errorf("%w: %s", ErrLinkTargetNotFound, err)
					}

					// Past MinDepth a failed hop stops the walk quietly.
					continue
				}

				var hopHTTP *HTTPResponse
				if len(hop.HTTP) > 0 {
					hopHTTP = hop.HTTP[len(hop.HTTP)-1]
					seed.HTTP = append(seed.HTTP, hopHTTP)
				}

				results = append(results, &WalkResult{
					Depth:  depth + 1,
					Object: hop.Object,
					HTTP:   hopHTTP,
				})
				next = append(next, hop.Object)
			}
		}

		if len(next) == 0 && depth+1 <= cfg.MinDepth {
			return nil, ErrLinkTargetNotFound
		}

		current = next
		depth++
	}

	maxDepth := 1
	for _, result := range results {
		if result.Depth > maxDepth {
			maxDepth = result.Depth
		}
	}

	if maxDepth < cfg.MinDepth {
		return nil, ErrLinkTargetNotFound
	}

	if cfg.OnlyShowTarget {
		for i := len(results) - 1; i >= 0; i-- {
			if results[i].Depth == maxDepth {
				return []*WalkResult{results[i]}, nil
			}
		}
	}

	return results, nil
}
