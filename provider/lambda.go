package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"

	"github.com/minios-linux/mnbkit/retry"
)

// ---------------------------------------------------------------------------
// AWS Lambda translator function
// ---------------------------------------------------------------------------

// lambdaInvoker is the subset of *lambda.Client used here.
type lambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaRequest is the payload sent to the translator function.
type LambdaRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

// LambdaResponse is the payload returned by the translator function.
// ErrorKind, when set, is one of the retry.FailureKind names.
type LambdaResponse struct {
	Text      string `json:"text"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// LambdaClient invokes a self-hosted translator function synchronously.
type LambdaClient struct {
	prov     Provider
	function string
	invoker  lambdaInvoker
	Verbose  bool
}

// NewLambdaClient loads the default AWS configuration (env, shared files,
// instance role) and targets the function named by p.BaseURL.
func NewLambdaClient(ctx context.Context, p Provider) (*LambdaClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &LambdaClient{
		prov:     p,
		function: p.BaseURL,
		invoker:  lambda.NewFromConfig(cfg),
		Verbose:  p.Verbose,
	}, nil
}

// Translate invokes the function with a LambdaRequest.
func (c *LambdaClient) Translate(ctx context.Context, prompt, model string) (string, error) {
	payload, err := json.Marshal(LambdaRequest{Prompt: prompt, Model: c.prov.model(model)})
	if err != nil {
		return "", retry.New(retry.InvalidRequest, fmt.Errorf("failed to marshal request: %w", err))
	}

	if c.Verbose {
		log.Printf("[DEBUG] %s: invoke %s", c.prov.Name, c.function)
	}

	result, err := c.invoker.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(c.function),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return "", lambdaFailure(ctx, fmt.Errorf("failed to invoke %s: %w", c.function, err))
	}

	// Unhandled errors inside the function (panics, timeouts)
	if result.FunctionError != nil {
		return "", retry.Newf(retry.Unavailable, "lambda error: %s: %s",
			aws.ToString(result.FunctionError), truncate(string(result.Payload), 500))
	}

	var resp LambdaResponse
	if err := json.Unmarshal(result.Payload, &resp); err != nil {
		return "", retry.New(retry.Unknown, fmt.Errorf("failed to parse response: %w", err))
	}
	if resp.Error != "" {
		return "", retry.Newf(retry.ParseKind(resp.ErrorKind), "translator error: %s", resp.Error)
	}
	return resp.Text, nil
}

// lambdaFailure maps Invoke errors onto failure kinds.
func lambdaFailure(ctx context.Context, err error) error {
	var tooMany *types.TooManyRequestsException
	if errors.As(err, &tooMany) {
		f := retry.New(retry.RateLimited, err)
		if tooMany.RetryAfterSeconds != nil {
			if secs, convErr := parseSeconds(*tooMany.RetryAfterSeconds); convErr == nil {
				f.RetryAfter = secs
			}
		}
		return f
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "UnrecognizedClientException",
			"ExpiredTokenException", "InvalidSignatureException":
			return retry.New(retry.Unauthorized, err)
		case "ServiceException", "ResourceNotReadyException",
			"EC2ThrottledException", "ResourceConflictException":
			return retry.New(retry.Unavailable, err)
		case "ResourceNotFoundException", "InvalidRequestContentException",
			"InvalidParameterValueException", "RequestTooLargeException":
			return retry.New(retry.InvalidRequest, err)
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return retry.New(retry.Unavailable, err)
		}
		return retry.New(retry.InvalidRequest, err)
	}
	return transportFailure(ctx, err)
}

func parseSeconds(s string) (time.Duration, error) {
	secs, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}
