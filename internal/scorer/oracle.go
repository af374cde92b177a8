package scorer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/jvl-group/leadradar/internal/leadstore"
	"github.com/jvl-group/leadradar/pkg/anthropic"
)

// Oracle produces a tailored outreach pitch for a lead. Implementations must
// return "" to keep the template pitch.
type Oracle interface {
	Pitch(ctx context.Context, lead leadstore.Lead) (string, error)
}

const oracleSystem = `You write outreach pitches for JVL, a vendor of MAC integrated servo motors
with native EtherCAT, PROFINET, EtherNet/IP, ROS2, UR and PLC (TwinCAT/TIA/Studio5000) integrations.
Given a company profile, reply with a single two-sentence pitch referencing their actual stack.
Reply with the pitch only, no preamble.`

// AnthropicOracle asks a Claude model for the pitch.
type AnthropicOracle struct {
	client anthropic.Client
	model  string
}

// NewAnthropicOracle wraps an API client for pitch generation.
func NewAnthropicOracle(client anthropic.Client, model string) *AnthropicOracle {
	return &AnthropicOracle{client: client, model: model}
}

func (o *AnthropicOracle) Pitch(ctx context.Context, lead leadstore.Lead) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s (%s)\n", lead.CompanyName, lead.Country)
	fmt.Fprintf(&sb, "Segment: %s\n", lead.Segment)
	fmt.Fprintf(&sb, "Stack: %s\n", strings.Join(lead.StackTags, ", "))
	if lead.Context != nil {
		if len(lead.Context.Sectors) > 0 {
			fmt.Fprintf(&sb, "Sectors: %s\n", strings.Join(lead.Context.Sectors, ", "))
		}
		if len(lead.Context.Partners) > 0 {
			fmt.Fprintf(&sb, "Partners: %s\n", strings.Join(lead.Context.Partners, ", "))
		}
	}
	fmt.Fprintf(&sb, "Why flagged: %s\n", lead.Reason)

	resp, err := o.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     o.model,
		MaxTokens: 256,
		System:    oracleSystem,
		Messages:  []anthropic.Message{{Role: "user", Content: sb.String()}},
	})
	if err != nil {
		return "", eris.Wrap(err, "scorer: oracle request")
	}
	resp.Usage.LogUsage(o.model, "pitch")
	return strings.TrimSpace(resp.Text()), nil
}
