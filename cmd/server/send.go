package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/skypro1111/stream-diarizer/internal/audio"
	"github.com/skypro1111/stream-diarizer/internal/protocol"
)

func newSendCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "send <file.wav>",
		Short: "Stream a WAV file to a running service as TLV datagrams",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			streamID, _ := cmd.Flags().GetUint32("stream-id")
			language, _ := cmd.Flags().GetString("language")
			encodingName, _ := cmd.Flags().GetString("encoding")
			packet, _ := cmd.Flags().GetDuration("packet")
			realtime, _ := cmd.Flags().GetBool("realtime")

			var encoding uint8
			switch encodingName {
			case "float32":
				encoding = protocol.EncodingFloat32
			case "pcm16":
				encoding = protocol.EncodingPCM16
			default:
				return fmt.Errorf("unsupported encoding %q (want float32 or pcm16)", encodingName)
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			samples, rate, err := audio.DecodeWAV(data)
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", args[0], err)
			}

			step := int(packet.Seconds() * float64(rate))
			if step < 1 || step > protocol.MaxSamplesPerPacket(encoding) {
				return fmt.Errorf("packet duration %s gives %d samples, allowed 1..%d",
					packet, step, protocol.MaxSamplesPerPacket(encoding))
			}

			conn, err := net.Dial("udp", addr)
			if err != nil {
				return fmt.Errorf("failed to dial %s: %w", addr, err)
			}
			defer conn.Close()

			start, err := protocol.BuildControlPacket(protocol.PacketTypeStart, streamID, encoding, language)
			if err != nil {
				return err
			}
			if _, err := conn.Write(start); err != nil {
				return fmt.Errorf("failed to send start packet: %w", err)
			}

			var sequence uint32
			for pos := 0; pos < len(samples); pos += step {
				end := min(pos+step, len(samples))
				datagram, err := protocol.BuildAudioPacket(streamID, encoding, sequence, samples[pos:end])
				if err != nil {
					return err
				}
				if _, err := conn.Write(datagram); err != nil {
					return fmt.Errorf("failed to send audio packet %d: %w", sequence, err)
				}
				sequence++
				if realtime {
					time.Sleep(packet)
				}
			}

			stop, err := protocol.BuildControlPacket(protocol.PacketTypeStop, streamID, encoding, "")
			if err != nil {
				return err
			}
			if _, err := conn.Write(stop); err != nil {
				return fmt.Errorf("failed to send stop packet: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sent %d audio packets (%.1fs) to %s\n",
				sequence, float64(len(samples))/float64(rate), addr)
			return nil
		},
	}

	c.Flags().String("addr", "127.0.0.1:5000", "Service UDP address")
	c.Flags().Uint32("stream-id", 1, "TLV stream id")
	c.Flags().String("language", "", "Language code sent in the start packet")
	c.Flags().String("encoding", "pcm16", "Sample encoding: float32 or pcm16")
	c.Flags().Duration("packet", 20*time.Millisecond, "Audio per datagram")
	c.Flags().Bool("realtime", true, "Pace datagrams at playback speed")
	return c
}
