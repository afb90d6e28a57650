package nvd

import "fmt"

// CheckError is returned when the CVE data cannot be obtained: a bad
// configuration, a failed download or a corrupt archive.
type CheckError struct {
	URL     string
	Message string
	Err     error
}

func (e *CheckError) Error() string {
	switch {
	case e.URL != "":
		return fmt.Sprintf("Error downloading from %s: %v", e.URL, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CheckError) Unwrap() error {
	return e.Err
}

// InvalidCPEError is returned for a CPE that is neither a formatted string
// nor a URI, such as the "N/A" placeholder of unregistered projects.
type InvalidCPEError struct {
	CPE string
	Err error
}

func (e *InvalidCPEError) Error() string {
	return fmt.Sprintf("invalid CPE %q: %v", e.CPE, e.Err)
}

func (e *InvalidCPEError) Unwrap() error {
	return e.Err
}
