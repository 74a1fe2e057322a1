package shipping

import "github.com/joao-fontenele/storefront-orderflow/internal/domain"

const DefaultLocale = "en"

var labels = map[string]map[domain.ShippingStatus]string{
	"en": {
		domain.ShippingStatusCreated:   "Shipping order created",
		domain.ShippingStatusPicking:   "Picking items in the warehouse",
		domain.ShippingStatusShipping:  "Handed over to the carrier",
		domain.ShippingStatusDelivered: "Delivered to the customer",
		domain.ShippingStatusFailed:    "Delivery failed",
		domain.ShippingStatusReturned:  "Returned to sender",
	},
	"vi": {
		domain.ShippingStatusCreated:   "Đã tạo đơn vận chuyển",
		domain.ShippingStatusPicking:   "Đang lấy hàng",
		domain.ShippingStatusShipping:  "Đang giao hàng",
		domain.ShippingStatusDelivered: "Đã giao hàng thành công",
		domain.ShippingStatusFailed:    "Giao hàng thất bại",
		domain.ShippingStatusReturned:  "Đã hoàn hàng",
	},
}

// Label returns the human-readable log message for status. Unknown locales
// fall back to English, unknown statuses to the raw value.
func Label(locale string, status domain.ShippingStatus) string {
	catalog, ok := labels[locale]
	if !ok {
		catalog = labels[DefaultLocale]
	}
	if label, ok := catalog[status]; ok {
		return label
	}
	return string(status)
}

func SupportedLocale(locale string) bool {
	_, ok := labels[locale]
	return ok
}
