package licenses

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScreenBatch(t *testing.T) {
	plan := screenBatch([]string{"a@x.com", "B@X.COM", "bad-email", "a@x.com", " b@x.com "})

	require.Equal(t, []string{"a@x.com", "b@x.com"}, plan.emails)
	require.Equal(t, []string{
		"Invalid email format: bad-email",
		"Duplicate email in request: a@x.com",
		"Duplicate email in request: b@x.com",
	}, plan.errors)
}

func TestScreenBatch_MalformedKeepsRawInput(t *testing.T) {
	plan := screenBatch([]string{"  Two@@Ats.com ", ""})
	require.Empty(t, plan.emails)
	require.Equal(t, []string{
		"Invalid email format:   Two@@Ats.com ",
		"Invalid email format: ",
	}, plan.errors)
}

func TestBatchPlan_WithoutExisting(t *testing.T) {
	plan := screenBatch([]string{"a@x.com", "b@x.com", "c@x.com", "nope"})
	plan = plan.withoutExisting(map[string]bool{"b@x.com": true})

	require.Equal(t, []string{"a@x.com", "c@x.com"}, plan.emails)
	require.Equal(t, []string{
		"Invalid email format: nope",
		"License already exists for: b@x.com",
	}, plan.errors)
}
