package domain

// Phase is one of the six canonical pipeline phases that carry a duration
// column on the execution row.
type Phase string

const (
	PhaseDetection       Phase = "detection"
	PhaseSupplierContact Phase = "supplier_contact"
	PhaseResponseWait    Phase = "response_wait"
	PhaseQuoteGeneration Phase = "quote_generation"
	PhaseApproval        Phase = "approval"
	PhaseSend            Phase = "send"
)

var Phases = []Phase{
	PhaseDetection,
	PhaseSupplierContact,
	PhaseResponseWait,
	PhaseQuoteGeneration,
	PhaseApproval,
	PhaseSend,
}

// stepPhases maps step names emitted by the pipeline driver to phases. The
// canonical phase names are accepted as step names too.
var stepPhases = map[string]Phase{
	"detection":              PhaseDetection,
	"detect_quote_request":   PhaseDetection,
	"email_detection":        PhaseDetection,
	"supplier_contact":       PhaseSupplierContact,
	"contact_suppliers":      PhaseSupplierContact,
	"send_supplier_requests": PhaseSupplierContact,
	"response_wait":          PhaseResponseWait,
	"monitor_responses":      PhaseResponseWait,
	"await_supplier_replies": PhaseResponseWait,
	"quote_generation":       PhaseQuoteGeneration,
	"generate_quote":         PhaseQuoteGeneration,
	"generate_pdf":           PhaseQuoteGeneration,
	"approval":               PhaseApproval,
	"await_approval":         PhaseApproval,
	"send":                   PhaseSend,
	"send_quote":             PhaseSend,
}

// PhaseForStep resolves the phase a step's duration is recorded under.
func PhaseForStep(stepName string) (Phase, bool) {
	p, ok := stepPhases[stepName]
	return p, ok
}

// StatusForPhase is the workflow status a run enters when a step of the
// given phase starts. Approval and send leave the status unchanged.
func StatusForPhase(p Phase) (WorkflowStatus, bool) {
	switch p {
	case PhaseDetection:
		return WorkflowDetecting, true
	case PhaseSupplierContact:
		return WorkflowSupplierContacted, true
	case PhaseResponseWait:
		return WorkflowAwaitingResponses, true
	case PhaseQuoteGeneration:
		return WorkflowGeneratingQuote, true
	}
	return "", false
}
