// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"net"
	"strings"
)

// checkTrustedProxies validates a comma separated CIDR/IP list. Trust-all
// networks and unspecified addresses are rejected.
func checkTrustedProxies(csv string) error {
	for _, entry := range strings.Split(csv, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if ip, ipnet, err := net.ParseCIDR(entry); err == nil {
			if ones, _ := ipnet.Mask.Size(); ones == 0 {
				return fmt.Errorf("trust-all network %q is not allowed", entry)
			}
			if ip.IsUnspecified() {
				return fmt.Errorf("unspecified address %q is not allowed", entry)
			}
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return fmt.Errorf("invalid entry %q (must be CIDR or IP)", entry)
		}
		if ip.IsUnspecified() {
			return fmt.Errorf("unspecified address %q is not allowed", entry)
		}
	}
	return nil
}
