package payment

import (
	"strings"

	"github.com/ikazeshop/payments/internal/domain/errors"
)

// Method is a payment rail supported by the gateway.
type Method string

const (
	MethodMTNMoMo     Method = "mtn_momo"
	MethodAirtelMoney Method = "airtel_money"
	MethodVisa        Method = "visa"
	MethodMastercard  Method = "mastercard"
	MethodSpenn       Method = "spenn"
)

// Channel groups methods by how the customer authorizes the charge.
type Channel string

const (
	ChannelMobileMoney Channel = "momo"
	ChannelCard        Channel = "card"
	ChannelWallet      Channel = "wallet"
)

// MethodInfo is the gateway-facing description of a method.
type MethodInfo struct {
	DisplayName string
	BankID      string
	// PMethod is the value sent in the gateway's pmethod field.
	PMethod string
	Channel Channel
}

var methodTable = map[Method]MethodInfo{
	MethodMTNMoMo:     {DisplayName: "MTN Mobile Money", BankID: "63510", PMethod: "momo", Channel: ChannelMobileMoney},
	MethodAirtelMoney: {DisplayName: "Airtel Money", BankID: "63514", PMethod: "momo", Channel: ChannelMobileMoney},
	MethodVisa:        {DisplayName: "Visa", BankID: "000", PMethod: "cc", Channel: ChannelCard},
	MethodMastercard:  {DisplayName: "Mastercard", BankID: "001", PMethod: "cc", Channel: ChannelCard},
	MethodSpenn:       {DisplayName: "SPENN", BankID: "63502", PMethod: "spenn", Channel: ChannelWallet},
}

// ParseMethod validates a client-supplied method name.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := methodTable[m]; !ok {
		return "", errors.ErrUnsupportedMethod
	}
	return m, nil
}

// Info returns the lookup-table entry for m.
func (m Method) Info() (MethodInfo, bool) {
	info, ok := methodTable[m]
	return info, ok
}

// Methods lists every supported method in a stable order.
func Methods() []Method {
	return []Method{MethodMTNMoMo, MethodAirtelMoney, MethodVisa, MethodMastercard, MethodSpenn}
}
