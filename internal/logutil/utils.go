package logutil

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Values groups fields under a single "values" object.
func Values(fields ...zap.Field) zap.Field {
	return Group("values", fields...)
}

// Group nests fields under key without reflection.
func Group(key string, fields ...zap.Field) zap.Field {
	return zap.Object(key, zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		for _, f := range fields {
			f.AddTo(enc)
		}
		return nil
	}))
}

// Point logs a coordinate pair as {"lat","lng"}.
func Point(key string, lat, lng float64) zap.Field {
	return Group(key, zap.Float64("lat", lat), zap.Float64("lng", lng))
}

// Fanout logs per-audience delivery counts as "recipients". Negative counts
// mean the audience was not addressed and are left out.
func Fanout(room, nearby, global int) zap.Field {
	return zap.Object("recipients", zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		for _, c := range []struct {
			name string
			n    int
		}{{"room", room}, {"nearby", nearby}, {"global", global}} {
			if c.n >= 0 {
				enc.AddInt(c.name, c.n)
			}
		}
		return nil
	}))
}
