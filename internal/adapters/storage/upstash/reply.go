package upstash

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/tidwall/gjson"
)

var (
	errMalformed  = errors.New("malformed response")
	errNotInteger = errors.New("result is not an integer")
)

// reply é o resultado validado de um comando: ou um inteiro, ou ausente (null).
// Qualquer outra forma é rejeitada em vez de convertida.
type reply struct {
	value   int64
	present bool
}

// parseCommandReply lê o elemento idx de uma resposta de pipeline/multi-exec:
// [{"result": 3}, {"result": 1}] ou [{"error": "..."}].
func parseCommandReply(body []byte, idx int) (reply, error) {
	if !gjson.ValidBytes(body) {
		return reply{}, errMalformed
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		// multi-exec abortado devolve um objeto {"error": "..."}
		if e := root.Get("error"); e.Exists() {
			return reply{}, fmt.Errorf("store error: %s", e.String())
		}
		return reply{}, errMalformed
	}

	elem := root.Get(strconv.Itoa(idx))
	if !elem.Exists() {
		return reply{}, errMalformed
	}
	return fromResultObject(elem)
}

// parseSingleReply lê a resposta de um comando REST simples: {"result": "3"} ou {"result": null}.
func parseSingleReply(body []byte) (reply, error) {
	if !gjson.ValidBytes(body) {
		return reply{}, errMalformed
	}
	return fromResultObject(gjson.ParseBytes(body))
}

func fromResultObject(obj gjson.Result) (reply, error) {
	if !obj.IsObject() {
		return reply{}, errMalformed
	}
	if e := obj.Get("error"); e.Exists() {
		return reply{}, fmt.Errorf("store error: %s", e.String())
	}
	result := obj.Get("result")
	if !result.Exists() {
		return reply{}, errMalformed
	}
	return integerResult(result)
}

func integerResult(r gjson.Result) (reply, error) {
	switch r.Type {
	case gjson.Null:
		return reply{}, nil
	case gjson.Number:
		if math.IsNaN(r.Num) || math.IsInf(r.Num, 0) || r.Num != math.Trunc(r.Num) {
			return reply{}, errNotInteger
		}
		n, err := strconv.ParseInt(r.Raw, 10, 64)
		if err != nil {
			return reply{}, errNotInteger
		}
		return reply{value: n, present: true}, nil
	case gjson.String:
		// GET devolve o valor como string
		n, err := strconv.ParseInt(r.Str, 10, 64)
		if err != nil {
			return reply{}, errNotInteger
		}
		return reply{value: n, present: true}, nil
	default:
		return reply{}, errNotInteger
	}
}
