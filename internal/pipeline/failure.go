package pipeline

import (
	"fmt"

	"git.home.luguber.info/inful/cicdsim/internal/status"
)

// FailureKind classifies why a build failed.
type FailureKind string

const (
	KindConfigNotFound      FailureKind = "ConfigNotFound"
	KindConfigMalformed     FailureKind = "ConfigMalformed"
	KindTestFailure         FailureKind = "TestFailure"
	KindMissingBuildName    FailureKind = "MissingBuildName"
	KindBuildFailure        FailureKind = "BuildFailure"
	KindMissingDeployTarget FailureKind = "MissingDeployTarget"
	KindDeployFailure       FailureKind = "DeployFailure"
	KindInternalError       FailureKind = "InternalError"
)

// Human readable reasons stored on failed records.
const (
	ReasonConfigError         = "config error"
	ReasonTestsFailed         = "tests failed"
	ReasonMissingBaseName     = "missing base_name"
	ReasonBuildFailed         = "build failed"
	ReasonMissingDeployTarget = "missing deploy target"
	ReasonDeployFailed        = "deploy failed"
	ReasonInternalError       = "internal error"
)

var reasons = map[FailureKind]string{
	KindConfigNotFound:      ReasonConfigError,
	KindConfigMalformed:     ReasonConfigError,
	KindTestFailure:         ReasonTestsFailed,
	KindMissingBuildName:    ReasonMissingBaseName,
	KindBuildFailure:        ReasonBuildFailed,
	KindMissingDeployTarget: ReasonMissingDeployTarget,
	KindDeployFailure:       ReasonDeployFailed,
	KindInternalError:       ReasonInternalError,
}

// Reason returns the record reason for kind.
func (k FailureKind) Reason() string {
	if r, ok := reasons[k]; ok {
		return r
	}
	return ReasonInternalError
}

// Failure is a stage failure. It ends the build in the failed state.
type Failure struct {
	Kind   FailureKind
	Stage  status.Status
	Reason string
	Err    error
}

func newFailure(kind FailureKind, stage status.Status, err error) *Failure {
	return &Failure{Kind: kind, Stage: stage, Reason: kind.Reason(), Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Stage, f.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", f.Stage, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }
