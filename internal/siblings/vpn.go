package siblings

import (
	"context"
	"time"
)

// VPNStatus is the body returned by GET {vpn}/api/status (§6).
type VPNStatus struct {
	Active bool   `json:"active"`
	Status string `json:"status"`
}

// IsActive implements the "active iff body has active==true OR
// status=="connected"" rule from §4.1 stage 1.
func (s VPNStatus) IsActive() bool {
	return s.Active || s.Status == "connected"
}

// VPNClient checks whether the VPN tunnel is up before any download starts.
type VPNClient struct{ c *client }

// NewVPNClient constructs a VPN sibling client.
func NewVPNClient(baseURL string, timeout time.Duration, opts ...Option) *VPNClient {
	return &VPNClient{c: newClient("vpn", baseURL, timeout, opts...)}
}

// Status calls GET /api/status. Per §4.1 stage 1, an unreachable VPN
// manager is treated the same as an inactive tunnel by the caller: it
// never infers "active" from a failed call.
func (v *VPNClient) Status(ctx context.Context) (VPNStatus, error) {
	var out VPNStatus
	err := v.c.do(ctx, "GET", "/api/status", "vpn.status", nil, &out)
	return out, err
}
