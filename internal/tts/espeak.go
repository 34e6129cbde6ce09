package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <espeak-ng/speak_lib.h>

static int
espeak_init(const char *voice)
{
	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -1; }

	espeak_VOICE specs = { .languages = voice };
	if (espeak_SetVoiceByProperties(&specs) != EE_OK)
	{ return -2; }

	return 0;
}

static int
espeak_say(const char *text)
{
	if (!text)
	{ return -1; }

	if (espeak_Synth(text, 500, 0, 0, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -2; }

	return espeak_Synchronize() == EE_OK ? 0 : -3;
}

static void
espeak_cancel(void)
{
	espeak_Cancel();
}
*/
import "C"

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unsafe"
)

// Espeak speaks through libespeak-ng with synchronous playback.
type Espeak struct {
	mu sync.Mutex
}

func NewEspeak(voice string) (*Espeak, error) {
	if voice == "" {
		voice = "en"
	}
	cvoice := C.CString(voice)
	defer C.free(unsafe.Pointer(cvoice))

	if rc := C.espeak_init(cvoice); rc != 0 {
		return nil, fmt.Errorf("espeak init failed: %d", int(rc))
	}
	return &Espeak{}, nil
}

// Speak blocks until the text is spoken. Cancelling ctx cuts playback
// short.
func (e *Espeak) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { C.espeak_cancel() })
	defer stop()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	if rc := C.espeak_say(ctext); rc != 0 {
		return fmt.Errorf("espeak_say failed: %d", int(rc))
	}
	return ctx.Err()
}

func (e *Espeak) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	C.espeak_Terminate()
	return nil
}
