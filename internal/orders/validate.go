package orders

import (
	"net/mail"
	"strings"

	"github.com/campusduka/storefront/internal/payments"
)

// ValidateCheckout returns nil when the form is complete, or a ValidationError
// listing every failing field.
func ValidateCheckout(request CheckoutRequest) error {
	fields := map[string]string{}
	require := func(field, value, message string) {
		if strings.TrimSpace(value) == "" {
			fields[field] = message
		}
	}

	require("firstName", request.Customer.FirstName, "First name is required")
	require("lastName", request.Customer.LastName, "Last name is required")
	if strings.TrimSpace(request.Customer.Email) == "" {
		fields["email"] = "Email is required"
	} else if _, err := mail.ParseAddress(strings.TrimSpace(request.Customer.Email)); err != nil {
		fields["email"] = "Email is invalid"
	}

	switch request.Address.Type {
	case AddressTypeHostel:
		require("hostelName", request.Address.HostelName, "Hostel name is required")
		require("blockName", request.Address.BlockName, "Block name is required")
		require("roomNumber", request.Address.RoomNumber, "Room number is required")
	case AddressTypeApartment:
		require("apartmentName", request.Address.ApartmentName, "Apartment name is required")
		require("houseNumber", request.Address.HouseNumber, "House number is required")
	default:
		fields["addressType"] = "Address type must be hostel or apartment"
	}

	if strings.TrimSpace(request.MpesaNumber) == "" {
		fields["mpesaNumber"] = "M-Pesa number is required"
	} else if !payments.ValidPhone(request.MpesaNumber) {
		fields["mpesaNumber"] = "Please enter a valid M-Pesa number (254XXXXXXXXX)"
	}
	if !request.AgreeToTerms {
		fields["agreeToTerms"] = "You must agree to the terms and conditions"
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}
