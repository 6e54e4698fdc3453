package dispatch

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-dispatch/internal/config"
	"mail-dispatch/internal/models"
)

func TestNewIdentityPolicy_RotatingName(t *testing.T) {
	p, err := NewIdentityPolicy(IdentityConfig{
		Policy: config.SenderPolicyRotateName,
		Names:  []string{"Billing", " ", "Support"},
		Email:  "noreply@example.com",
	}, true)
	require.NoError(t, err)

	assert.Equal(t, 2, p.Len())
	assert.Equal(t, config.SenderPolicyRotateName, p.Kind())

	r := models.Recipient{Email: "a@example.org"}
	assert.Equal(t, Identity{Name: "Billing", Address: "noreply@example.com"}, p.Identity(0, r))
	assert.Equal(t, Identity{Name: "Support", Address: "noreply@example.com"}, p.Identity(1, r))
}

func TestNewIdentityPolicy_RotationDisabled(t *testing.T) {
	p, err := NewIdentityPolicy(IdentityConfig{
		Names: []string{"Billing", "Support"},
		Email: "noreply@example.com",
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, p.Len())
	assert.Equal(t, "Billing", p.Identity(0, models.Recipient{}).Name)
}

func TestNewIdentityPolicy_TaggedAddress(t *testing.T) {
	p, err := NewIdentityPolicy(IdentityConfig{
		Policy:  config.SenderPolicyTaggedAddress,
		Names:   []string{"Newsletter"},
		Domain:  "@news.example.com",
		Mailbox: "bounce",
		Secret:  "s3cret",
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())

	a := p.Identity(0, models.Recipient{Email: "Alice@Example.org"})
	b := p.Identity(0, models.Recipient{Email: "alice@example.org"})
	c := p.Identity(0, models.Recipient{Email: "bob@example.org"})

	assert.Equal(t, "Newsletter", a.Name)
	assert.Regexp(t, regexp.MustCompile(`^bounce\+[0-9a-f]{16}@news\.example\.com$`), a.Address)
	assert.Equal(t, a.Address, b.Address)
	assert.NotEqual(t, a.Address, c.Address)
}

func TestTaggedAddress_SecretChangesTag(t *testing.T) {
	a := &TaggedAddress{Secret: []byte("one")}
	b := &TaggedAddress{Secret: []byte("two")}
	assert.NotEqual(t, a.Tag("x@example.org"), b.Tag("x@example.org"))
}

func TestNewIdentityPolicy_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  IdentityConfig
	}{
		{"no names", IdentityConfig{Email: "a@b.c"}},
		{"rotate without email", IdentityConfig{Names: []string{"A"}}},
		{"tagged without domain", IdentityConfig{Policy: config.SenderPolicyTaggedAddress, Names: []string{"A"}, Mailbox: "m"}},
		{"tagged without mailbox", IdentityConfig{Policy: config.SenderPolicyTaggedAddress, Names: []string{"A"}, Domain: "d.com"}},
		{"unknown policy", IdentityConfig{Policy: "random", Names: []string{"A"}, Email: "a@b.c"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewIdentityPolicy(tc.cfg, true)
			assert.Error(t, err)
		})
	}
}
