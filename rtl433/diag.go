package rtl433

import (
	"strings"

	"gortlbridge/shared"
)

// Status reasons published for well known hardware failures.
const (
	ReasonUSBBusy      = "Error: USB Busy"
	ReasonNoDevice     = "No Device Found"
	ReasonNotFound     = "Error: rtl_433 Not Found"
	ReasonAccessDenied = "Error: USB Access Denied"
)

// Diagnostic is a recognized hardware failure found in decoder output.
type Diagnostic struct {
	Reason string
	Err    error
}

type diagRule struct {
	needles []string
	diag    Diagnostic
}

var diagRules = []diagRule{
	{[]string{"usb_claim_interface error", "Kernel driver is active", "Device or resource busy", "LIBUSB_ERROR_BUSY"},
		Diagnostic{ReasonUSBBusy, shared.ErrUSBBusy}},
	{[]string{"LIBUSB_ERROR_ACCESS", "usb_open error -3", "Permission denied"},
		Diagnostic{ReasonAccessDenied, shared.ErrUSBAccess}},
	{[]string{"No supported devices", "No matching device", "usb_open error"},
		Diagnostic{ReasonNoDevice, shared.ErrNoDevice}},
}

// Diagnose recognizes hardware failure messages on decoder stderr.
func Diagnose(text string) (Diagnostic, bool) {
	for _, rule := range diagRules {
		for _, n := range rule.needles {
			if strings.Contains(text, n) {
				return rule.diag, true
			}
		}
	}
	return Diagnostic{}, false
}
