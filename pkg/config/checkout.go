package config

import (
	"fmt"
	"strings"
	"time"
)

type CheckoutConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	SweepInterval time.Duration `koanf:"sweepInterval"`
}

// String returns a string representation of the checkout configuration.
func (c *CheckoutConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Checkout ---\n")
	b.WriteString(fmt.Sprintf("  ttl: %s\n", c.TTL))
	b.WriteString(fmt.Sprintf("  sweepInterval: %s\n", c.SweepInterval))
	return b.String()
}

func (c *CheckoutConfig) Validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("checkout session TTL is not configured")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("checkout sweep interval is not configured")
	}
	return nil
}
