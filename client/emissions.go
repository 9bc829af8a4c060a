package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-certidigital/core"
	"github.com/goliatone/go-certidigital/emission"
	"github.com/goliatone/go-certidigital/transport"
	goerrors "github.com/goliatone/go-errors"
)

// IssuedEmission is one entry of the bulk issue response.
type IssuedEmission struct {
	UUID             string          `json:"uuid,omitempty"`
	EmissionsBlockID string          `json:"emissionsBlockId"`
	Raw              json.RawMessage `json:"-"`
}

func (e *IssuedEmission) UnmarshalJSON(data []byte) error {
	var payload struct {
		UUID             string          `json:"uuid"`
		EmissionsBlockID json.RawMessage `json:"emissionsBlockId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	e.UUID = payload.UUID
	e.EmissionsBlockID = rawID(payload.EmissionsBlockID)
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// block ids come back as numbers or strings depending on the deployment
func rawID(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	return text
}

// BlockIDFromIssued returns the emissions block shared by an issue response.
func BlockIDFromIssued(issued []IssuedEmission) (string, error) {
	for _, entry := range issued {
		if entry.EmissionsBlockID != "" {
			return entry.EmissionsBlockID, nil
		}
	}
	return "", goerrors.New("client: issue response has no emissions block id", goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ServiceErrorExternalFailure).
		WithMetadata(map[string]any{"entries": len(issued)})
}

// CredentialTemplate downloads the recipients spreadsheet template of a
// credential. body is the template request document.
func (c *Client) CredentialTemplate(ctx context.Context, centerID int64, credentialID int64, body json.RawMessage) ([]byte, error) {
	if len(body) == 0 {
		body = json.RawMessage(`{}`)
	}
	res, err := c.do(ctx, call{
		operation: "credential_template",
		apiID:     core.EndpointCreateCredential,
		suffix:    formatID(credentialID) + "/recipients/templates",
		method:    http.MethodPost,
		query: map[string]string{
			"issuingCenterId": formatID(centerID),
			"locale":          c.locale(),
		},
		headers: map[string]string{"Accept": acceptOctetStream},
		body:    body,
		timeout: c.uploadTimeout(),
		fields:  map[string]any{"entity": string(core.EntityCredential), "oid": credentialID, "issuing_center_id": centerID},
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), res.Body...), nil
}

// IssueFromTemplate uploads a filled recipients spreadsheet and issues one
// credential per row.
func (c *Client) IssueFromTemplate(ctx context.Context, centerID int64, credentialID int64, fileName string, content io.Reader) ([]IssuedEmission, error) {
	if content == nil {
		return nil, goerrors.New("client: recipients spreadsheet is required", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput)
	}
	reader, contentType := transport.MultipartFile("file", fileName, transport.ContentTypeXLSX, content)
	defer reader.Close()

	res, err := c.do(ctx, call{
		operation: "issue_from_template",
		apiID:     core.EndpointCreateCredential,
		suffix:    formatID(credentialID) + "/issue/templates",
		method:    http.MethodPost,
		query: map[string]string{
			"issuingCenterId": formatID(centerID),
			"alias":           "None",
		},
		headers: map[string]string{"Accept": acceptJSON, "Content-Type": contentType},
		reader:  reader,
		timeout: c.uploadTimeout(),
		fields:  map[string]any{"entity": string(core.EntityCredential), "oid": credentialID, "issuing_center_id": centerID},
	})
	if err != nil {
		return nil, err
	}
	var issued []IssuedEmission
	if err := decodeBody(res, &issued, "issue from template"); err != nil {
		return nil, err
	}
	return issued, nil
}

type blockEmission struct {
	UUID    string `json:"uuid"`
	StateID *int   `json:"stateId"`
}

type emissionsEnvelope struct {
	Emissions []blockEmission `json:"emissions"`
}

// EmissionsBlock fetches the current state of every emission in a block.
// A 404 maps to emission.NotFound; other remote failures to
// emission.RemoteUnavailable so the tracker can retry them.
func (c *Client) EmissionsBlock(ctx context.Context, blockID string) (emission.Batch, error) {
	blockID = strings.TrimSpace(blockID)
	if blockID == "" {
		return emission.Batch{}, goerrors.New("client: emissions block id is required", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput)
	}
	res, err := c.do(ctx, call{
		operation: "emissions_block",
		apiID:     core.EndpointEmissionsBlock,
		suffix:    blockID,
		method:    http.MethodGet,
		fields:    map[string]any{"block_id": blockID},
	})
	if err != nil {
		if core.IsCategory(err, goerrors.CategoryNotFound) {
			return emission.Batch{}, emission.NotFound(blockID)
		}
		if core.IsCategory(err, goerrors.CategoryBadInput) && res.StatusCode == 0 {
			return emission.Batch{}, err
		}
		return emission.Batch{}, emission.RemoteUnavailable(err, blockID)
	}

	var envelope emissionsEnvelope
	if err := decodeBody(res, &envelope, "emissions block"); err != nil {
		return emission.Batch{}, emission.RemoteUnavailable(err, blockID)
	}
	batch := emission.Batch{ID: blockID, Jobs: make([]emission.Job, 0, len(envelope.Emissions))}
	for _, entry := range envelope.Emissions {
		batch.Jobs = append(batch.Jobs, emission.Job{
			ID:     strings.TrimSpace(entry.UUID),
			Status: emission.StatusFromCode(entry.StateID),
		})
	}
	return batch, nil
}

// FetchBatch implements emission.StatusProvider.
func (c *Client) FetchBatch(ctx context.Context, batchID string) ([]emission.Job, error) {
	batch, err := c.EmissionsBlock(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return batch.Jobs, nil
}

// Seal queues uuids for sealing and returns how many the API accepted.
func (c *Client) Seal(ctx context.Context, centerID int64, uuids []string) (int, error) {
	if len(uuids) == 0 {
		return 0, nil
	}
	res, err := c.do(ctx, call{
		operation: "emissions_seal",
		apiID:     core.EndpointEmissionsSeal,
		method:    http.MethodPost,
		body: map[string]any{
			"uuidList":        uuids,
			"issuingCenterId": centerID,
		},
		fields: map[string]any{"issuing_center_id": centerID, "uuids": len(uuids)},
	})
	if err != nil {
		return 0, err
	}
	var envelope struct {
		Emissions []json.RawMessage `json:"emissions"`
	}
	if err := decodeBody(res, &envelope, "emissions seal"); err != nil {
		return 0, err
	}
	return len(envelope.Emissions), nil
}

// SubmitSeal implements emission.SealSubmitter using the configured issuing
// center.
func (c *Client) SubmitSeal(ctx context.Context, batchID string, ids []string) (emission.SealAck, error) {
	accepted, err := c.Seal(ctx, c.issuance.IssuingCenterID, ids)
	if err != nil {
		return emission.SealAck{}, err
	}
	c.logger.Info("certidigital emissions queued for sealing", "block_id", batchID, "requested", len(ids), "accepted", accepted)
	return emission.SealAck{AcceptedCount: accepted}, nil
}

// SendEmail notifies the recipients of the given emissions.
func (c *Client) SendEmail(ctx context.Context, uuids []string) error {
	if len(uuids) == 0 {
		return nil
	}
	_, err := c.do(ctx, call{
		operation: "emissions_send",
		apiID:     core.EndpointEmissionsSend,
		method:    http.MethodPost,
		body:      map[string]any{"uuidList": uuids},
		fields:    map[string]any{"uuids": len(uuids)},
	})
	return err
}

// SendToEUWallet pushes each emission to the recipient's EU wallet, one call
// per uuid. Every uuid is attempted; failures are joined in the error.
func (c *Client) SendToEUWallet(ctx context.Context, centerID int64, uuids []string) (int, error) {
	sent := 0
	var errs []error
	for _, id := range uuids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if ctx != nil && ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		_, err := c.do(ctx, call{
			operation: "emissions_send_eu_wallet",
			apiID:     core.EndpointEmissionsSendEUWallet,
			method:    http.MethodPost,
			query: map[string]string{
				"id":   formatID(centerID),
				"uuid": id,
			},
			fields: map[string]any{"issuing_center_id": centerID, "uuid": id},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("uuid %s: %w", id, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// UUIDs returns every job id of the batch in batch order.
func UUIDs(batch emission.Batch) []string {
	ids := make([]string, 0, len(batch.Jobs))
	for _, job := range batch.Jobs {
		ids = append(ids, job.ID)
	}
	return ids
}

// SealedUUIDs returns the ids of the batch whose status is sealed.
func SealedUUIDs(batch emission.Batch) []string {
	ids := make([]string, 0, len(batch.Jobs))
	for _, job := range batch.Jobs {
		if job.Status.Normalize() == emission.StatusSealed {
			ids = append(ids, job.ID)
		}
	}
	return ids
}

var (
	_ emission.StatusProvider = (*Client)(nil)
	_ emission.SealSubmitter  = (*Client)(nil)
)
