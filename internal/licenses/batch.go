package licenses

import (
	"fmt"

	"github.com/aliuyar1234/seatdesk/internal/validation"
)

// batchPlan is a batch after screening: the normalized emails still to be
// inserted, in input order, and the messages for rows already rejected.
type batchPlan struct {
	emails []string
	errors []string
}

// screenBatch normalizes rows and drops malformed entries and repeats of an
// email seen earlier in the same batch. The first occurrence wins.
func screenBatch(rows []string) batchPlan {
	plan := batchPlan{errors: []string{}}
	seen := make(map[string]bool, len(rows))

	for _, raw := range rows {
		email := validation.NormalizeEmail(raw)
		if err := validation.ValidateEmail(email); err != nil {
			plan.errors = append(plan.errors, fmt.Sprintf("Invalid email format: %s", raw))
			continue
		}
		if seen[email] {
			plan.errors = append(plan.errors, fmt.Sprintf("Duplicate email in request: %s", email))
			continue
		}
		seen[email] = true
		plan.emails = append(plan.emails, email)
	}
	return plan
}

// withoutExisting drops emails that already hold a license.
func (p batchPlan) withoutExisting(existing map[string]bool) batchPlan {
	out := batchPlan{errors: p.errors}
	for _, email := range p.emails {
		if existing[email] {
			out.errors = append(out.errors, existsMessage(email))
			continue
		}
		out.emails = append(out.emails, email)
	}
	return out
}

func existsMessage(email string) string {
	return fmt.Sprintf("License already exists for: %s", email)
}
