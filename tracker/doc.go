/*
Package tracker contains the playback engine of trackplay and the pieces
around it.

The Player plays a trackplay.Decoder through a trackplay.AudioOutput on its
own goroutine. The front ends never touch the decoder directly: they read
TransportState snapshots with Player.Snapshot and change the playback with
the control methods, e.g. JumpToOrder, JumpRows, SetVolume and SetEffect.
Remote controls, such as MIDI input, send Commands through the Broker instead,
and the front end applies them with Player.ExecuteAll on its own goroutine.

The signal chain of the player is: decoder, volume, the selected Effect, and
then the SpectrumAnalyzer, the WaveformSampler and the peak meter, which only
observe the signal before it is written to the output.

Player.Export renders the whole song into a file with the same volume and
effect, pausing playback for the duration. ExportAsync does the same in the
background, reporting the progress through the Broker.

Config holds the user settings, read from an embedded default file and an
optional user file on top of it.
*/
package tracker
