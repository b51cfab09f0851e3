package public

import (
	handlershared "github.com/paymind-next/internal/http/handlers/shared"
)

func normalizePagination(page, pageSize int) (int, int) {
	return handlershared.NormalizePagination(page, pageSize)
}
