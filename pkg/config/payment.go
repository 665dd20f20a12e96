package config

import (
	"fmt"
	"strings"
	"time"
)

type PaymentConfig struct {
	Currency        string        `koanf:"currency"`
	WalletSupported bool          `koanf:"walletSupported"`
	ConnectTimeout  time.Duration `koanf:"connectTimeout"`
}

// String returns a string representation of the payment configuration.
func (c *PaymentConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Payment ---\n")
	b.WriteString(fmt.Sprintf("  currency: %s\n", c.Currency))
	b.WriteString(fmt.Sprintf("  walletSupported: %t\n", c.WalletSupported))
	b.WriteString(fmt.Sprintf("  connectTimeout: %s\n", c.ConnectTimeout))
	return b.String()
}

func (c *PaymentConfig) Validate() error {
	if len(c.Currency) != 3 {
		return fmt.Errorf("invalid ISO currency code: %q", c.Currency)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("payment provider connect timeout is not configured")
	}
	return nil
}
