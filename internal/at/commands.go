// Package at holds the AT command set simscan speaks and the parsers for the
// replies. Replies are matched by fixed prefixes and fixed field offsets
// rather than a full AT grammar; each parser documents the shape it expects.
package at

import "fmt"

// Commands, CR terminated as the modules expect.
var (
	CmdPINStatus       = []byte("AT+CPIN?\r")
	CmdIMSI            = []byte("AT+CIMI\r")
	CmdTextMode        = []byte("AT+CMGF=1\r")
	CmdListSMS         = []byte("AT+CMGL=\"ALL\"\r")
	CmdUSSDBalance     = []byte("AT+CUSD=1,\"*99#\"\r")
	CmdPhonebookMSISDN = []byte("AT+CPBS=\"ON\"\r")
	CmdOperator        = []byte("AT+COPS?\r")
	CmdReadICCID       = []byte("AT+CRSM=176,12258,0,0,10\r")
	CmdSMSStorage      = []byte("AT+CPMS=\"SM\"\r")
	CmdDeleteAllSMS    = []byte("AT+CMGD=1,4\r")
)

// Status prefixes reported by AT+CPIN?.
const (
	StatusReady  = "+CPIN: READY"
	StatusSIMPIN = "+CPIN: SIM PIN"
)

// EnterPIN builds the unlock command. The caller must have validated pin.
func EnterPIN(pin string) []byte {
	return []byte(fmt.Sprintf("AT+CPIN=\"%s\"\r", pin))
}

// DisablePINLock builds the command that turns off the SIM PIN lock.
func DisablePINLock(pin string) []byte {
	return []byte(fmt.Sprintf("AT+CLCK=\"SC\",0,\"%s\"\r", pin))
}
