package mjpeg

import "testing"

func TestExtractBoundary(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		want        string
	}{
		{"plain", "multipart/x-mixed-replace;boundary=myboundary", "myboundary"},
		{"followed by semicolon", "multipart/x-mixed-replace;boundary=frame;charset=utf-8", "frame"},
		{"terminated by carriage return", "multipart/x-mixed-replace;boundary=frame\r", "frame"},
		{"quoted", "multipart/x-mixed-replace;boundary=\"frame\"", "frame"},
		{"redundant marker prefix", "multipart/x-mixed-replace;boundary=--videoboundary", "videoboundary"},
		{"quoted with marker prefix", "multipart/x-mixed-replace;boundary=\"--frame\";foo=bar", "frame"},
		{"with space after semicolon", "multipart/x-mixed-replace; boundary=ipcamera", "ipcamera"},
		{"missing parameter", "image/jpeg", ""},
		{"empty value", "multipart/x-mixed-replace;boundary=", ""},
	}
	for _, c := range cases {
		if got := ExtractBoundary(c.contentType); got != c.want {
			t.Errorf("%s: ExtractBoundary(%q) = %q, want %q", c.name, c.contentType, got, c.want)
		}
	}
}
