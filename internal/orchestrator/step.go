package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/internal/executor"
	"github.com/maftabmirza/remediation-engine-sub001/internal/executor/httpapi"
	"github.com/maftabmirza/remediation-engine-sub001/internal/secretbox"
	"github.com/maftabmirza/remediation-engine-sub001/internal/template"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// runStep renders, runs, and records the outcome of one step. A non-nil
// error means the step failed and (unless continue_on_failure) the
// execution should roll back.
func (o *Orchestrator) runStep(ctx context.Context, exec model.RunbookExecution, runbook model.Runbook, cred model.ServerCredential, step model.RunbookStep, tctx template.Context) (model.StepExecution, error) {
	se, err := o.store.CreateStepExecution(ctx, model.StepExecution{
		ID: execStepID(exec.ID, step.ID), ExecutionID: exec.ID, StepID: step.ID, StepOrder: step.StepOrder,
		Status: model.ExecutionRunning, Attempt: 1,
	})
	if err != nil {
		return se, err
	}

	target, command, err := o.buildTarget(cred, step, tctx)
	if err != nil {
		_ = o.store.CompleteStepExecution(ctx, se.ID, model.ExecutionFailed, err.Error(), -1)
		return se, err
	}

	if exec.IsDryRun {
		output := "[dry-run] " + command
		_ = o.store.CompleteStepExecution(ctx, se.ID, model.ExecutionSucceeded, output, 0)
		o.audit.Emit("step.dry_run", exec.TriggeredBy, "step_execution", se.ID, map[string]any{"step": step.Name, "command": command})
		return se, nil
	}

	driver, ok := o.drivers[step.Type]
	if !ok {
		ferr := fmt.Errorf("no driver registered for step type %q", step.Type)
		_ = o.store.CompleteStepExecution(ctx, se.ID, model.ExecutionFailed, ferr.Error(), -1)
		return se, ferr
	}

	timeout := time.Duration(step.TimeoutSeconds) * time.Second
	retryDelay := time.Duration(step.RetryDelaySeconds) * time.Second

	var result *executor.Result
	var validationErr error
	runErr := o.breakers.Execute(ctx, "global", exec.ServerID, o.global.FailureThreshold, o.global.FailureWindowMinutes, o.global.OpenDurationMinutes, func() error {
		return o.breakers.Execute(ctx, "runbook", runbook.ID, runbook.FailureThreshold, runbook.FailureWindowMinutes, runbook.OpenDurationMinutes, func() error {
			result = driver.Run(ctx, target, command, timeout, step.Retries, retryDelay)
			if !result.Success {
				return fmt.Errorf("step %q failed: %s", step.Name, result.Err)
			}
			validationErr = validateStepResult(step, result)
			return validationErr
		})
	})

	status := model.ExecutionSucceeded
	exitCode := 0
	output := ""
	if result != nil {
		exitCode = result.ExitCode
		output = result.Stdout
		if result.Stderr != "" {
			output = output + "\n" + result.Stderr
		}
	}
	if runErr != nil {
		status = model.ExecutionFailed
	} else {
		extractStepOutput(step, output, tctx)
	}
	_ = o.store.CompleteStepExecution(ctx, se.ID, status, output, exitCode)

	if runErr != nil {
		o.audit.Emit("step.failed", exec.TriggeredBy, "step_execution", se.ID, map[string]any{"step": step.Name, "error": runErr.Error()})
		return se, runErr
	}
	o.audit.Emit("step.succeeded", exec.TriggeredBy, "step_execution", se.ID, map[string]any{"step": step.Name})
	return se, nil
}

// validateStepResult checks a succeeded driver run against the step's
// expected exit code and output pattern, turning a result the driver
// considered successful into a step failure when it doesn't match what the
// runbook author declared.
func validateStepResult(step model.RunbookStep, result *executor.Result) error {
	if result.ExitCode != step.ExpectedExitCode {
		return fmt.Errorf("step %q: expected exit code %d, got %d", step.Name, step.ExpectedExitCode, result.ExitCode)
	}
	if step.ExpectedOutputPattern != "" {
		re, err := regexp.Compile(step.ExpectedOutputPattern)
		if err != nil {
			return fmt.Errorf("step %q: invalid expected_output_pattern: %w", step.Name, err)
		}
		if !re.MatchString(result.Stdout) {
			return fmt.Errorf("step %q: output did not match expected_output_pattern", step.Name)
		}
	}
	return nil
}

// extractStepOutput captures OutputExtractPattern's first match (or its
// first capture group, if the pattern has one) from a succeeded step's
// output into tctx's shared extracted namespace, so later steps' templates
// can reference {{ extracted.<output_variable> }}.
func extractStepOutput(step model.RunbookStep, output string, tctx template.Context) {
	if step.OutputVariable == "" || step.OutputExtractPattern == "" {
		return
	}
	extracted, ok := tctx["extracted"].(map[string]any)
	if !ok {
		return
	}
	re, err := regexp.Compile(step.OutputExtractPattern)
	if err != nil {
		return
	}
	match := re.FindStringSubmatch(output)
	if match == nil {
		return
	}
	if len(match) > 1 {
		extracted[step.OutputVariable] = match[1]
	} else {
		extracted[step.OutputVariable] = match[0]
	}
}

// buildTarget resolves the executor.Target (decrypting credential secret
// material) and the rendered command for step.
func (o *Orchestrator) buildTarget(cred model.ServerCredential, step model.RunbookStep, tctx template.Context) (executor.Target, string, error) {
	var secret []byte
	if len(cred.SecretMaterialEncrypted) > 0 {
		var err error
		secret, err = o.secrets.Open(cred.SecretMaterialEncrypted)
		if err != nil {
			return executor.Target{}, "", apierror.Wrap(apierror.Internal, "decrypt credential", err)
		}
		defer secretbox.Zero(secret)
	}

	target := executor.Target{
		ServerID: cred.ServerID, Hostname: cred.Hostname, Port: cred.Port, Username: cred.Username,
		UseSSL: cred.UseSSL, APIBaseURL: cred.APIBaseURL, ConnectTimeout: 30 * time.Second,
	}

	switch step.Type {
	case model.StepTypeSSH:
		target.Password, target.PrivateKeyPEM = splitSecret(cred, secret)
		rendered, err := template.Render(step.CommandLinux, tctx, false)
		if err != nil {
			return target, "", apierror.Wrap(apierror.TemplateResolution, "render command_linux", err)
		}
		return target, rendered, nil

	case model.StepTypeWinRM:
		target.Password = string(secret)
		rendered, err := template.Render(step.CommandWindows, tctx, false)
		if err != nil {
			return target, "", apierror.Wrap(apierror.TemplateResolution, "render command_windows", err)
		}
		return target, rendered, nil

	case model.StepTypeHTTPAPI:
		body, err := template.Render(step.APIBody, tctx, true)
		if err != nil {
			return target, "", apierror.Wrap(apierror.TemplateResolution, "render api_body", err)
		}
		endpoint, err := template.Render(step.APIEndpoint, tctx, false)
		if err != nil {
			return target, "", apierror.Wrap(apierror.TemplateResolution, "render api_endpoint", err)
		}
		reqJSON, err := json.Marshal(httpapi.StepRequest{
			Method: step.APIMethod, Endpoint: endpoint, Headers: step.APIHeaders,
			BodyType: step.APIBodyType, Body: body, RetryOnStatus: step.APIRetryOnStatus,
		})
		if err != nil {
			return target, "", apierror.Wrap(apierror.Internal, "marshal step request", err)
		}
		return target, string(reqJSON), nil

	default:
		return target, "", fmt.Errorf("unknown step type %q", step.Type)
	}
}

// splitSecret interprets decrypted secret material for SSH: a leading
// "KEY:" prefix means PEM private key content follows, otherwise it is a
// plain password.
func splitSecret(cred model.ServerCredential, secret []byte) (password, privateKeyPEM string) {
	const keyPrefix = "KEY:"
	s := string(secret)
	if len(s) > len(keyPrefix) && s[:len(keyPrefix)] == keyPrefix {
		return "", s[len(keyPrefix):]
	}
	return s, ""
}

// rollback best-effort runs each completed step's rollback command in
// reverse order. A rollback failure is logged and does not abort the rest
// of the rollback — matching the teacher's "never let cleanup failure halt
// the main flow" posture.
func (o *Orchestrator) rollback(ctx context.Context, exec model.RunbookExecution, cred model.ServerCredential, completed []model.RunbookStep, tctx template.Context) {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		rollbackCmd := step.RollbackCommandLinux
		if step.Type == model.StepTypeWinRM {
			rollbackCmd = step.RollbackCommandWindows
		}
		if rollbackCmd == "" {
			continue
		}

		rbStep := step
		if step.Type == model.StepTypeWinRM {
			rbStep.CommandWindows = rollbackCmd
		} else {
			rbStep.CommandLinux = rollbackCmd
		}

		target, command, err := o.buildTarget(cred, rbStep, tctx)
		if err != nil {
			o.log.Warn("rollback render failed", zap.String("step", step.Name), zap.Error(err))
			continue
		}
		driver, ok := o.drivers[step.Type]
		if !ok {
			continue
		}
		res := driver.Run(ctx, target, command, time.Duration(step.TimeoutSeconds)*time.Second, 0, 0)
		if !res.Success {
			o.log.Warn("rollback command failed", zap.String("step", step.Name), zap.String("error", res.Err))
		}
		_ = o.store.MarkStepRolledBack(ctx, execStepID(exec.ID, step.ID))
	}
}

func execStepID(executionID, stepID string) string { return executionID + ":" + stepID }
