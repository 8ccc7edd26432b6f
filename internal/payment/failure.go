package payment

import (
	"sort"
	"strings"
)

// UnknownFailureMessage is used for codes missing from the table.
const UnknownFailureMessage = "Bilinmeyen hata oluştu."

var failureReasons = map[string]string{
	"01": "Kartınız onaylanmadı. Bankanızla iletişime geçin.",
	"02": "Yetersiz bakiye. Lütfen farklı bir kart deneyin.",
	"03": "Kart numarası hatalı. Lütfen kontrol edin.",
	"04": "Kart son kullanma tarihi geçmiş.",
	"05": "CVC kodu hatalı. Lütfen kontrol edin.",
	"06": "İşlem limiti aşıldı. Bankanızla iletişime geçin.",
	"07": "3D Secure doğrulama başarısız.",
	"08": "Kart bloke durumda. Bankanızla iletişime geçin.",
	"09": "İşlem zaman aşımına uğradı. Tekrar deneyin.",
	"10": "Sistem hatası. Lütfen tekrar deneyin.",
}

// FailureReason is a gateway failure code with its customer-facing message.
type FailureReason struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Known   bool   `json:"known"`
}

// DescribeFailure maps a gateway failure code to a message. Unknown or empty
// codes map to UnknownFailureMessage.
func DescribeFailure(code string) FailureReason {
	code = strings.TrimSpace(code)
	if msg, ok := failureReasons[code]; ok {
		return FailureReason{Code: code, Message: msg, Known: true}
	}
	return FailureReason{Code: code, Message: UnknownFailureMessage}
}

// FailureReasons lists the known codes ordered by code.
func FailureReasons() []FailureReason {
	out := make([]FailureReason, 0, len(failureReasons))
	for code, msg := range failureReasons {
		out = append(out, FailureReason{Code: code, Message: msg, Known: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
