package linkprobe

import "context"

// Method names the strategy that produced a Result.
type Method string

const (
	MethodStealth    Method = "stealth"
	MethodEnhanced   Method = "enhanced"
	MethodBehavioral Method = "behavioral"
	MethodDNS        Method = "dns"
)

// Result is the outcome of validating one URL. Accessible implies Exists.
type Result struct {
	Exists     bool           `json:"exists"`
	Accessible bool           `json:"accessible"`
	Metadata   *Metadata      `json:"metadata,omitempty"`
	Method     Method         `json:"method"`
	Attempts   int            `json:"attempts"`
	DebugInfo  map[string]any `json:"debugInfo,omitempty"`
}

// Metadata is what was learned about the target beyond existence.
type Metadata struct {
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	Favicon      string `json:"favicon,omitempty"`
	StatusCode   int    `json:"statusCode,omitempty"`
	ResponseTime int64  `json:"responseTime,omitempty"` // milliseconds
	RedirectURL  string `json:"redirectUrl,omitempty"`
	ContentType  string `json:"contentType,omitempty"`
	LastModified string `json:"lastModified,omitempty"`
	Server       string `json:"server,omitempty"`
}

// Strategy is one stage of the cascade. Attempt must not return until its
// own requests are finished; the runner recovers panics.
type Strategy interface {
	Method() Method
	Attempt(ctx context.Context, target string) Result
}

func (r *Result) debug(key string, v any) {
	if r.DebugInfo == nil {
		r.DebugInfo = make(map[string]any)
	}
	r.DebugInfo[key] = v
}

func (r Result) normalize() Result {
	if r.Accessible {
		r.Exists = true
	}
	return r
}
