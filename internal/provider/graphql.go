package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultGraphQLURL is the provider's GraphQL endpoint.
const DefaultGraphQLURL = "https://api.runpod.io/graphql"

// GraphQLClient talks to the older GraphQL API generation. It exposes the
// same pod operations as the REST generation plus the account query the
// REST generation never gained.
type GraphQLClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGraphQLClient creates a client for the GraphQL generation. endpoint
// may be empty to use the production endpoint.
func NewGraphQLClient(endpoint, apiKey string, timeout time.Duration) *GraphQLClient {
	if endpoint == "" {
		endpoint = DefaultGraphQLURL
	}
	return &GraphQLClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

type envPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Create implements Client.Create via the podLaunch mutation. The GraphQL
// generation takes env as a key/value pair array, not an object.
func (c *GraphQLClient) Create(ctx context.Context, req JobRequest) (string, error) {
	env := make([]envPair, 0, len(req.Env))
	for k, v := range req.Env {
		env = append(env, envPair{Key: k, Value: v})
	}

	input := map[string]any{
		"name":       req.Name,
		"cloudType":  req.CloudType,
		"gpuTypeId":  req.GPUTypeID,
		"gpuCount":   req.GPUCount,
		"imageName":  req.Image,
		"env":        env,
		"volumeInGb": req.VolumeGB,
	}
	if req.StartCommand != "" {
		input["dockerArgs"] = req.StartCommand
	}

	data, err := c.query(ctx,
		"mutation($in: PodInput!){ podLaunch(input:$in){ podId } }",
		map[string]any{"in": input})
	if err != nil {
		return "", err
	}

	var result struct {
		PodLaunch *struct {
			PodID string `json:"podId"`
		} `json:"podLaunch"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", &ParseError{Field: "podLaunch", Cause: err}
	}
	if result.PodLaunch == nil || result.PodLaunch.PodID == "" {
		return "", ErrMissingPodID
	}
	return result.PodLaunch.PodID, nil
}

// Status implements Client.Status via the podDetails query.
func (c *GraphQLClient) Status(ctx context.Context, podID string) (Status, error) {
	data, err := c.query(ctx,
		"query($id:ID!){ podDetails(podId:$id){ phase runtime exitCode } }",
		map[string]any{"id": podID})
	if err != nil {
		return Status{}, err
	}

	var result struct {
		PodDetails *struct {
			Phase    *string  `json:"phase"`
			Runtime  *float64 `json:"runtime"`
			ExitCode *int     `json:"exitCode"`
		} `json:"podDetails"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return Status{}, &ParseError{Field: "podDetails", Cause: err}
	}
	if result.PodDetails == nil || result.PodDetails.Phase == nil || *result.PodDetails.Phase == "" {
		return Status{}, &ParseError{Field: "podDetails.phase"}
	}

	d := result.PodDetails
	return Status{
		Phase:          NormalizePhase(*d.Phase, d.ExitCode),
		RawPhase:       *d.Phase,
		RuntimeSeconds: d.Runtime,
		ExitCode:       d.ExitCode,
	}, nil
}

// Logs implements Client.Logs via the podLogs query.
func (c *GraphQLClient) Logs(ctx context.Context, podID string) (string, error) {
	data, err := c.query(ctx,
		"query($id:ID!){ podLogs(podId:$id) }",
		map[string]any{"id": podID})
	if err != nil {
		return "", err
	}

	var result struct {
		PodLogs *string `json:"podLogs"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", &ParseError{Field: "podLogs", Cause: err}
	}
	if result.PodLogs == nil {
		return "", &ParseError{Field: "podLogs"}
	}
	return *result.PodLogs, nil
}

// Terminate implements Client.Terminate via the podTerminate mutation.
func (c *GraphQLClient) Terminate(ctx context.Context, podID string) error {
	_, err := c.query(ctx,
		"mutation($id:ID!){ podTerminate(podId:$id) }",
		map[string]any{"id": podID})
	return err
}

// Account holds the identity and balance of the authenticated user.
type Account struct {
	ID      string
	Email   string
	Balance float64
}

// Balance fetches the account balance. Only the GraphQL generation exposes
// this; the balance command always uses this client.
func (c *GraphQLClient) Balance(ctx context.Context) (*Account, error) {
	data, err := c.query(ctx, "query { me { id email accountBalance } }", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Me *struct {
			ID             string  `json:"id"`
			Email          string  `json:"email"`
			AccountBalance float64 `json:"accountBalance"`
		} `json:"me"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &ParseError{Field: "me", Cause: err}
	}
	if result.Me == nil {
		return nil, &ParseError{Field: "me"}
	}
	return &Account{ID: result.Me.ID, Email: result.Me.Email, Balance: result.Me.AccountBalance}, nil
}

// query posts one GraphQL document and unwraps the response envelope. An
// errors array in a 200 response is an application-level failure, reported
// as an AppError and never retried.
func (c *GraphQLClient) query(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if variables == nil {
		variables = map[string]any{}
	}
	reqBody, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	// The GraphQL generation takes the raw key, not a Bearer scheme.
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncateBody(string(body))}
	}

	var envelope graphqlResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &ParseError{Field: "response envelope", Cause: err}
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, len(envelope.Errors))
		for i, e := range envelope.Errors {
			messages[i] = e.Message
		}
		return nil, &AppError{Messages: messages}
	}
	if envelope.Data == nil {
		return nil, &ParseError{Field: "data"}
	}
	return envelope.Data, nil
}
