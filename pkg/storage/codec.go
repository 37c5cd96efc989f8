package storage

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// badger 值编码：确定性 CBOR（相同数据集得到相同字节），any 目标解码为 map[string]any
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("storage: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("storage: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshalCBOR(v any) ([]byte, error) {
	return cborEnc.Marshal(v)
}

func unmarshalCBOR(data []byte, v any) error {
	return cborDec.Unmarshal(data, v)
}
