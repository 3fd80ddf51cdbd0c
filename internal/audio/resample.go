package audio

import "encoding/binary"

// Resample 最近邻重采样，不做抗混叠滤波
func Resample(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 {
		return in
	}
	n := int(int64(len(in)) * int64(to) / int64(from))
	out := make([]float32, n)
	for i := range out {
		out[i] = in[int64(i)*int64(from)/int64(to)]
	}
	return out
}

// Float32ToInt16 限幅到[-1,1]后转换为16位整数，负数乘32768，正数乘32767
func Float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		if s < 0 {
			out[i] = int16(s * 32768)
		} else {
			out[i] = int16(s * 32767)
		}
	}
	return out
}

// PCM16LE 16位小端字节序
func PCM16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Float32ToPCM16LE 识别请求使用的音频格式
func Float32ToPCM16LE(in []float32) []byte {
	return PCM16LE(Float32ToInt16(in))
}

// Merge 按顺序拼接采集块
func Merge(blocks [][]float32) []float32 {
	total := 0
	for _, b := range blocks {
		total += len(b)
	}
	out := make([]float32, 0, total)
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}
