package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// CorrelationVersion is the schema written into new checkout sessions. Later
// versions may only add keys, so any version >= 1 decodes with the v1 fields.
const CorrelationVersion = 1

const (
	mdVersion       = "corr_version"
	mdTenantID      = "tenant_id"
	mdEventDate     = "event_date"
	mdPackageID     = "package_id"
	mdAddOnIDs      = "add_on_ids"
	mdCustomerEmail = "customer_email"
	mdCustomerName  = "customer_name"
	mdBookingID     = "booking_id"
)

// Correlation travels through the payment provider as session metadata and
// comes back on the webhook, tying the payment to the reservation.
type Correlation struct {
	Version       int
	TenantID      string
	EventDate     string
	PackageID     string
	AddOnIDs      []string
	CustomerEmail string
	CustomerName  string
	BookingID     string
}

func CorrelationFor(b *Booking) Correlation {
	return Correlation{
		Version:       CorrelationVersion,
		TenantID:      b.TenantID,
		EventDate:     b.EventDate,
		PackageID:     b.PackageID,
		AddOnIDs:      append([]string(nil), b.AddOnIDs...),
		CustomerEmail: b.CustomerEmail,
		CustomerName:  b.CustomerName,
		BookingID:     b.ID,
	}
}

// Metadata flattens c into provider metadata (string keys and values).
func (c Correlation) Metadata() map[string]string {
	md := map[string]string{
		mdVersion:       strconv.Itoa(CorrelationVersion),
		mdTenantID:      c.TenantID,
		mdEventDate:     c.EventDate,
		mdPackageID:     c.PackageID,
		mdCustomerEmail: c.CustomerEmail,
	}
	if len(c.AddOnIDs) > 0 {
		md[mdAddOnIDs] = strings.Join(c.AddOnIDs, ",")
	}
	if c.CustomerName != "" {
		md[mdCustomerName] = c.CustomerName
	}
	if c.BookingID != "" {
		md[mdBookingID] = c.BookingID
	}
	return md
}

// ParseCorrelation decodes provider metadata. Unknown keys are ignored.
func ParseCorrelation(md map[string]string) (Correlation, error) {
	raw, ok := md[mdVersion]
	if !ok {
		return Correlation{}, fmt.Errorf("%w: missing %s", ErrMalformedCorrelation, mdVersion)
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return Correlation{}, fmt.Errorf("%w: bad %s %q", ErrMalformedCorrelation, mdVersion, raw)
	}

	c := Correlation{
		Version:       v,
		TenantID:      md[mdTenantID],
		PackageID:     md[mdPackageID],
		CustomerEmail: md[mdCustomerEmail],
		CustomerName:  md[mdCustomerName],
		BookingID:     md[mdBookingID],
	}
	for _, id := range strings.Split(md[mdAddOnIDs], ",") {
		if id = strings.TrimSpace(id); id != "" {
			c.AddOnIDs = append(c.AddOnIDs, id)
		}
	}
	for key, val := range map[string]string{mdTenantID: c.TenantID, mdPackageID: c.PackageID, mdCustomerEmail: c.CustomerEmail} {
		if val == "" {
			return Correlation{}, fmt.Errorf("%w: missing %s", ErrMalformedCorrelation, key)
		}
	}
	day, err := ParseEventDate(md[mdEventDate])
	if err != nil {
		return Correlation{}, fmt.Errorf("%w: %v", ErrMalformedCorrelation, err)
	}
	c.EventDate = day
	return c, nil
}
