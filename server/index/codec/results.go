package codec

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
	"github.com/zhukovaskychina/xmysql-index/server/index/measure"
	"github.com/zhukovaskychina/xmysql-index/util"
)

// encodeResults 个数，然后每个值为 valid(1) 加带长度前缀的 decimal 二进制
func encodeResults(buf []byte, rs *measure.ResultSet) ([]byte, error) {
	buf = util.WriteLength(buf, int64(rs.Len()))
	for i := 0; i < rs.Len(); i++ {
		r := rs.At(i)
		buf = util.WriteByte(buf, util.ConvertBool2Byte(r.Valid))
		b, err := r.Value.MarshalBinary()
		if err != nil {
			return nil, errors.Wrapf(err, "encode measure %d", i)
		}
		buf = util.WriteWithLength(buf, b)
	}
	return buf, nil
}

func decodeResults(buf []byte, cursor int, names []string) (int, *measure.ResultSet, error) {
	cursor, n, err := util.ReadLength(buf, cursor)
	if err != nil {
		return cursor, nil, err
	}
	if int(n) != len(names) {
		return cursor, nil, errors.Wrapf(basic.ErrDescriptorMismatch, "%d stored measures, %d declared", n, len(names))
	}
	values := make([]measure.Result, len(names))
	for i := range values {
		var valid byte
		cursor, valid, err = util.ReadByte(buf, cursor)
		if err != nil {
			return cursor, nil, err
		}
		var b []byte
		cursor, b, err = util.ReadWithLength(buf, cursor)
		if err != nil {
			return cursor, nil, err
		}
		if len(b) < 4 {
			return cursor, nil, errors.Wrapf(basic.ErrPageCorrupted, "measure %s has %d bytes", names[i], len(b))
		}
		var v decimal.Decimal
		if err := v.UnmarshalBinary(b); err != nil {
			return cursor, nil, errors.Wrapf(basic.ErrPageCorrupted, "measure %s: %v", names[i], err)
		}
		values[i] = measure.Result{Value: v, Valid: valid == 1}
	}
	return cursor, measure.NewResultSet(names, values), nil
}
