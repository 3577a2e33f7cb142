package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/patyfb04/play-inventory/internal/core/domain"
)

// GrantConsumer is the part of the grant engine the transports drive.
type GrantConsumer interface {
	Consume(ctx context.Context, cmd domain.GrantItems) (domain.GrantOutcome, error)
}

type Disposition int

const (
	// Ack removes the message from the broker.
	Ack Disposition = iota
	// Retry hands the message back for another delivery.
	Retry
	// DeadLetter parks the message; delivering it again cannot succeed.
	DeadLetter
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	case DeadLetter:
		return "dead_letter"
	}
	return fmt.Sprintf("disposition(%d)", int(d))
}

func decodeGrant(body []byte, messageID string) (domain.GrantItems, error) {
	var cmd domain.GrantItems
	if err := json.Unmarshal(body, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %w", domain.ErrInvalidCommand, err)
	}
	cmd.MessageID = messageID
	return cmd, nil
}

// handleGrant decodes one delivery, runs it through the engine and decides
// what the transport should do with the message.
func handleGrant(ctx context.Context, grants GrantConsumer, body []byte, messageID string) (Disposition, error) {
	cmd, err := decodeGrant(body, messageID)
	if err != nil {
		return DeadLetter, err
	}

	outcome, err := grants.Consume(ctx, cmd)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCommand) {
			return DeadLetter, err
		}
		return Retry, err
	}
	if err := outcome.Err(); err != nil {
		return DeadLetter, fmt.Errorf("catalog item %s: %w", cmd.CatalogItemID, err)
	}
	return Ack, nil
}
