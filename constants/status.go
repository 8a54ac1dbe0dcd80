package constants

// ResultCode is the numeric status carried by every pipeline result.
// The values match what the mobile client already understands.
type ResultCode int

const (
	CodeOK                   ResultCode = 200
	CodeConfigurationMissing ResultCode = 4001
	CodeInvalidInput         ResultCode = 4002
	CodeCancelled            ResultCode = 4990
	CodeExtractionFailed     ResultCode = 5001
)

// FailureKind is the canonical failure category for a terminal pipeline result.
type FailureKind string

// Stable values (returned to clients as-is).
const (
	FailureConfigurationMissing FailureKind = "CONFIGURATION_MISSING"
	FailureExtractionFailed     FailureKind = "EXTRACTION_FAILED"
	FailureCancelled            FailureKind = "CANCELLED"
	FailureInvalidInput         FailureKind = "INVALID_INPUT"
)

// Code maps a failure kind to its result code.
func (k FailureKind) Code() ResultCode {
	switch k {
	case FailureConfigurationMissing:
		return CodeConfigurationMissing
	case FailureExtractionFailed:
		return CodeExtractionFailed
	case FailureCancelled:
		return CodeCancelled
	default:
		return CodeInvalidInput
	}
}

// User-facing messages shown on the result card.
const (
	MsgConfigurationMissing = "请先在设置中配置识别服务的 API Key"
	MsgExtractionFailed     = "OCR识别失败，请确保图片清晰"
	MsgCancelled            = "分析已取消"
	MsgAnalysisDone         = "解读完成"
)
