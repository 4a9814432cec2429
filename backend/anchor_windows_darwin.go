//go:build darwin

package backend

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation

#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <unistd.h>

typedef struct {
	unsigned int number;
	int x;
	int y;
	int width;
	int height;
	char title[128];
	char owner[128];
} externalWindowInfo;

static void copyDictString(CFDictionaryRef dict, CFStringRef key, char *out, size_t cap) {
	out[0] = '\0';
	CFStringRef value = (CFStringRef)CFDictionaryGetValue(dict, key);
	if (value == NULL) {
		return;
	}
	CFStringGetCString(value, out, cap, kCFStringEncodingUTF8);
}

static int copyOnScreenWindows(externalWindowInfo *out, int max) {
	CFArrayRef windows = CGWindowListCopyWindowInfo(
		kCGWindowListOptionOnScreenOnly | kCGWindowListExcludeDesktopElements,
		kCGNullWindowID);
	if (windows == NULL) {
		return 0;
	}

	pid_t own = getpid();
	int count = 0;
	CFIndex total = CFArrayGetCount(windows);
	for (CFIndex i = 0; i < total && count < max; i++) {
		CFDictionaryRef info = (CFDictionaryRef)CFArrayGetValueAtIndex(windows, i);

		int layer = 0;
		CFNumberRef layerRef = (CFNumberRef)CFDictionaryGetValue(info, kCGWindowLayer);
		if (layerRef != NULL) {
			CFNumberGetValue(layerRef, kCFNumberIntType, &layer);
		}
		if (layer != 0) {
			continue; // 通常レイヤ以外(メニューバー、Dockなど)は対象外
		}

		int pid = 0;
		CFNumberRef pidRef = (CFNumberRef)CFDictionaryGetValue(info, kCGWindowOwnerPID);
		if (pidRef != NULL) {
			CFNumberGetValue(pidRef, kCFNumberIntType, &pid);
		}
		if (pid == (int)own) {
			continue; // 自分自身のウィンドウは追従先にしない
		}

		CFDictionaryRef boundsRef = (CFDictionaryRef)CFDictionaryGetValue(info, kCGWindowBounds);
		CGRect bounds = CGRectZero;
		if (boundsRef == NULL || !CGRectMakeWithDictionaryRepresentation(boundsRef, &bounds)) {
			continue;
		}

		int number = 0;
		CFNumberRef numberRef = (CFNumberRef)CFDictionaryGetValue(info, kCGWindowNumber);
		if (numberRef != NULL) {
			CFNumberGetValue(numberRef, kCFNumberIntType, &number);
		}

		externalWindowInfo *w = &out[count];
		w->number = (unsigned int)number;
		w->x = (int)bounds.origin.x;
		w->y = (int)bounds.origin.y;
		w->width = (int)bounds.size.width;
		w->height = (int)bounds.size.height;
		copyDictString(info, kCGWindowName, w->title, sizeof(w->title));
		copyDictString(info, kCGWindowOwnerName, w->owner, sizeof(w->owner));
		count++;
	}

	CFRelease(windows);
	return count;
}
*/
import "C"

const (
	maxEnumeratedWindows = 64
	minAnchorTargetSize  = 100 // これより小さいウィンドウは追従先として意味がない
)

func platformWindowSource() func() []ExternalWindow {
	return listOnScreenWindows
}

// listOnScreenWindows はCGWindowListから通常レイヤのウィンドウ一覧を取り出します
func listOnScreenWindows() []ExternalWindow {
	buf := make([]C.externalWindowInfo, maxEnumeratedWindows)
	n := int(C.copyOnScreenWindows(&buf[0], C.int(len(buf))))

	windows := make([]ExternalWindow, 0, n)
	for i := 0; i < n; i++ {
		info := buf[i]
		w := ExternalWindow{
			ID:    uint32(info.number),
			Title: C.GoString(&info.title[0]),
			Owner: C.GoString(&info.owner[0]),
			Rect: Rect{
				X:      int(info.x),
				Y:      int(info.y),
				Width:  int(info.width),
				Height: int(info.height),
			},
		}
		if w.Rect.Width < minAnchorTargetSize || w.Rect.Height < minAnchorTargetSize {
			continue
		}
		windows = append(windows, w)
	}
	return windows
}
