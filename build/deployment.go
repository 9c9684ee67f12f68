package build

// DeploymentType is an enum specifying the deployment to compile.
type DeploymentType byte

const (
	// Development is a deployment that includes extra testing hooks and
	// writes all subsystem output to stdout.
	Development DeploymentType = iota

	// Production is a deployment that routes subsystem loggers through the
	// backend supplied by the binary.
	Production
)

// Deployment is the deployment this binary was compiled for. Tests run with
// the development deployment so that package loggers can be silenced or
// redirected without a backend.
var Deployment = Production

// LogLevel is the default level applied to stdout sub loggers created in a
// development deployment.
var LogLevel = "info"

// String returns a human readable name for a build type.
func (b DeploymentType) String() string {
	switch b {
	case Development:
		return "development"
	case Production:
		return "production"
	default:
		return "unknown"
	}
}

// IsProdBuild returns true if this is a production build.
func IsProdBuild() bool {
	return Deployment == Production
}

// IsDevBuild returns true if this is a development build.
func IsDevBuild() bool {
	return Deployment == Development
}
