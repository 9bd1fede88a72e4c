package errors

import "strconv"

// ERR is the numeric error code carried by every *Error.
type ERR int32

const (
	ERR_UNKNOWN          ERR = 0
	ERR_INVALID_ARGUMENT ERR = 1
	ERR_NOT_FOUND        ERR = 3
	ERR_PROCESSING       ERR = 4
	ERR_CONFIGURATION    ERR = 5
	ERR_CONTEXT_CANCELED ERR = 6
	ERR_ERROR            ERR = 9

	// block
	ERR_BLOCK_NOT_FOUND ERR = 10

	// transaction
	ERR_TX_NOT_FOUND ERR = 30

	// service
	ERR_SERVICE_UNAVAILABLE ERR = 50
	ERR_SERVICE_ERROR       ERR = 59

	// storage
	ERR_STORAGE_UNAVAILABLE ERR = 60
	ERR_STORAGE_ERROR       ERR = 69

	// index records
	ERR_MALFORMED_RECORD ERR = 80
	ERR_STALE_CHECKPOINT ERR = 81
)

var ERR_name = map[int32]string{
	0:  "UNKNOWN",
	1:  "INVALID_ARGUMENT",
	3:  "NOT_FOUND",
	4:  "PROCESSING",
	5:  "CONFIGURATION",
	6:  "CONTEXT_CANCELED",
	9:  "ERROR",
	10: "BLOCK_NOT_FOUND",
	30: "TX_NOT_FOUND",
	50: "SERVICE_UNAVAILABLE",
	59: "SERVICE_ERROR",
	60: "STORAGE_UNAVAILABLE",
	69: "STORAGE_ERROR",
	80: "MALFORMED_RECORD",
	81: "STALE_CHECKPOINT",
}

var ERR_value = func() map[string]int32 {
	m := make(map[string]int32, len(ERR_name))
	for k, v := range ERR_name {
		m[v] = k
	}

	return m
}()

func (x ERR) String() string {
	if s, ok := ERR_name[int32(x)]; ok {
		return s
	}

	return strconv.Itoa(int(x))
}

func (x ERR) Enum() *ERR {
	p := new(ERR)
	*p = x

	return p
}
